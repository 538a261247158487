package notification

import (
	"context"
	"errors"
	"time"
)

var ErrRecordNotFound = errors.New("notification not found")

// Record is a persisted notification shown in the user's inbox.
type Record struct {
	ID            string
	UserID        string
	Role          string
	Kind          string
	Title         string
	Body          string
	RideRequestID string
	ReadAt        *time.Time
	CreatedAt     time.Time
}

// Store persists notification records. Insert joins the caller's unit of work.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	List(ctx context.Context, userID string, limit int) ([]Record, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
}
