package ride

import "context"

// Repository persists ride requests together with their embedded offers.
// GetForUpdate locks the row until the surrounding unit of work ends.
type Repository interface {
	Create(ctx context.Context, r RideRequest) error
	Get(ctx context.Context, id string) (RideRequest, error)
	GetForUpdate(ctx context.Context, id string) (RideRequest, error)
	// FindRideIDByOffer resolves the ride owning an offer.
	FindRideIDByOffer(ctx context.Context, offerID string) (string, error)
	// Update writes r when the stored row still has the expected status and
	// r.Version, and bumps the version. It returns ErrStale otherwise.
	Update(ctx context.Context, r RideRequest, expected Status) error
	// SetTruckerAvailability flips the availability of the trucker's offers
	// on every other posted ride. Released offers are left alone.
	SetTruckerAvailability(ctx context.Context, truckerID, excludeRideID string, available bool) (int, error)
	// IsTruckerEngaged reports whether the trucker holds the accepted offer of
	// any ride other than excludeRideID.
	IsTruckerEngaged(ctx context.Context, truckerID, excludeRideID string) (bool, error)
	ListByRequester(ctx context.Context, requesterID string, limit int) ([]RideRequest, error)
	ListPosted(ctx context.Context, limit int) ([]RideRequest, error)
}
