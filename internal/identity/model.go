package identity

import (
	"errors"
	"time"
)

// Roles.
const (
	RoleClient  = "client"
	RoleTrucker = "trucker"
	RoleAdmin   = "admin"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user exists")
)

// User represents a registered client, trucker or admin.
type User struct {
	ID           string
	Phone        string
	Name         string
	PhotoURL     string
	Role         string
	Lat          *float64
	Lng          *float64
	PINHash      []byte
	TokenVersion int
	CreatedAt    time.Time
}

// Profile is the public view of a user shown to counterparties.
type Profile struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	PhotoURL string   `json:"photoUrl,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, PhotoURL: u.PhotoURL, Lat: u.Lat, Lng: u.Lng}
}

// Credentials request structure.
type Credentials struct {
	Phone string
	PIN   string
}

// Registration carries the fields of a new account.
type Registration struct {
	Credentials
	Name     string
	PhotoURL string
	Role     string
}
