package ride

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusPosted    Status = "posted"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// AllowedTransitions is the ride request state flow. Reopen is the
// accepted -> posted edge.
var AllowedTransitions = map[Status][]Status{
	StatusCreated:  {StatusPosted, StatusCancelled},
	StatusPosted:   {StatusAccepted, StatusCancelled},
	StatusAccepted: {StatusCompleted, StatusPosted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

var (
	ErrNotFound = errors.New("ride request not found")
	// ErrStale is returned by conditional updates that matched no row because
	// the status or version moved underneath the caller.
	ErrStale = errors.New("ride request changed concurrently")
)

type Point struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

type Vehicle struct {
	Category   string `json:"category"`
	LoadState  string `json:"loadState"`
	WheelState string `json:"wheelState"`
}

// Offer is a trucker's bid. Offers are stored inside their ride request and
// only ever change through it.
type Offer struct {
	ID           string           `json:"id"`
	TruckerID    string           `json:"truck_id"`
	Price        decimal.Decimal  `json:"offered_price"`
	ETA          string           `json:"estimated_time"`
	CounterPrice *decimal.Decimal `json:"client_counter_price,omitempty"`
	Available    bool             `json:"available"`
	// Released marks the offer that was accepted and then reopened. It stays
	// unavailable and its trucker cannot bid on this ride again.
	Released  bool      `json:"released,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ReopenInfo struct {
	ActorID string
	Reason  string
	At      time.Time
}

// RideRequest is the aggregate root: status, offers and settlement fields
// change together in one conditional write.
type RideRequest struct {
	ID              string
	RequesterID     string
	Origin          Point
	Destination     Point
	PickupAt        time.Time
	Vehicle         Vehicle
	Status          Status
	Version         int
	AcceptedOfferID string
	// TruckerID is the trucker of the accepted offer. It outlives the
	// acceptance on completed and cancelled rides and is cleared on reopen.
	TruckerID       string
	Commission      decimal.Decimal
	Offers          []Offer
	Reopen          *ReopenInfo
	AcceptedAt      *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OfferIndex returns the position of the offer with the given id, or -1.
func (r *RideRequest) OfferIndex(offerID string) int {
	for i := range r.Offers {
		if r.Offers[i].ID == offerID {
			return i
		}
	}
	return -1
}

// TruckerOfferIndex returns the position of the trucker's offer, or -1.
func (r *RideRequest) TruckerOfferIndex(truckerID string) int {
	for i := range r.Offers {
		if r.Offers[i].TruckerID == truckerID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to mutate.
func (r RideRequest) Clone() RideRequest {
	out := r
	out.Offers = make([]Offer, len(r.Offers))
	for i, o := range r.Offers {
		if o.CounterPrice != nil {
			cp := *o.CounterPrice
			o.CounterPrice = &cp
		}
		out.Offers[i] = o
	}
	if r.Reopen != nil {
		ri := *r.Reopen
		out.Reopen = &ri
	}
	out.AcceptedAt = cloneTime(r.AcceptedAt)
	out.CompletedAt = cloneTime(r.CompletedAt)
	out.CancelledAt = cloneTime(r.CancelledAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
