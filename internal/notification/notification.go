package notification

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Event kinds pushed to connected clients.
const (
	KindOfferAccepted       = "offerAccepted"
	KindNewOffer            = "newOffer"
	KindCounterOffer        = "counterOffer"
	KindRideReopened        = "rideReopened"
	KindRideCompleted       = "rideCompleted"
	KindRideCancelled       = "rideCancelled"
	KindReloadNotifications = "reloadNotifications"
)

// Event is one post-commit push addressed to the room of a single user.
type Event struct {
	Kind          string    `json:"event"`
	Role          string    `json:"role"`
	UserID        string    `json:"userId"`
	RideRequestID string    `json:"rideRequestId,omitempty"`
	Data          any       `json:"data,omitempty"`
	At            time.Time `json:"at"`
}

// Room returns the push room an event is delivered to.
func (e Event) Room() string {
	return Room(e.Role, e.UserID)
}

// Room keys connections by role and user id.
func Room(role, userID string) string {
	return role + ":" + userID
}

// Notifier delivers events to downstream systems. Delivery is best effort.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// LoggerNotifier writes events to the logger.
type LoggerNotifier struct {
	logger zerolog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger zerolog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, event Event) error {
	if n == nil {
		return nil
	}
	n.logger.Debug().
		Str("kind", event.Kind).
		Str("room", event.Room()).
		Str("ride_request_id", event.RideRequestID).
		Msg("notification")
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
