package ride

import (
	"context"
	"sort"
	"time"

	"github.com/towlink/towlink/internal/infra"
)

type memoryRepository struct {
	tx    *infra.MemoryTransactor
	rides map[string]RideRequest
}

// NewMemoryRepository returns an in-process Repository that takes part in
// tx's units of work.
func NewMemoryRepository(tx *infra.MemoryTransactor) Repository {
	r := &memoryRepository{tx: tx, rides: make(map[string]RideRequest)}
	tx.Register(r)
	return r
}

func (r *memoryRepository) Snapshot() func() {
	saved := make(map[string]RideRequest, len(r.rides))
	for k, v := range r.rides {
		saved[k] = v.Clone()
	}
	return func() { r.rides = saved }
}

func (r *memoryRepository) Create(ctx context.Context, ride RideRequest) error {
	defer r.tx.Guard(ctx)()
	r.rides[ride.ID] = ride.Clone()
	return nil
}

func (r *memoryRepository) Get(ctx context.Context, id string) (RideRequest, error) {
	defer r.tx.Guard(ctx)()
	ride, ok := r.rides[id]
	if !ok {
		return RideRequest{}, ErrNotFound
	}
	return ride.Clone(), nil
}

// GetForUpdate is Get: the transactor lock already serializes writers.
func (r *memoryRepository) GetForUpdate(ctx context.Context, id string) (RideRequest, error) {
	return r.Get(ctx, id)
}

func (r *memoryRepository) FindRideIDByOffer(ctx context.Context, offerID string) (string, error) {
	defer r.tx.Guard(ctx)()
	for id, ride := range r.rides {
		if ride.OfferIndex(offerID) >= 0 {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (r *memoryRepository) Update(ctx context.Context, ride RideRequest, expected Status) error {
	defer r.tx.Guard(ctx)()
	current, ok := r.rides[ride.ID]
	if !ok || current.Status != expected || current.Version != ride.Version {
		return ErrStale
	}
	ride = ride.Clone()
	ride.Version++
	r.rides[ride.ID] = ride
	return nil
}

func (r *memoryRepository) SetTruckerAvailability(ctx context.Context, truckerID, excludeRideID string, available bool) (int, error) {
	defer r.tx.Guard(ctx)()
	now := time.Now().UTC()
	changed := 0
	for id, ride := range r.rides {
		if id == excludeRideID || ride.Status != StatusPosted {
			continue
		}
		i := ride.TruckerOfferIndex(truckerID)
		if i < 0 || ride.Offers[i].Released {
			continue
		}
		ride = ride.Clone()
		ride.Offers[i].Available = available
		ride.Offers[i].UpdatedAt = now
		ride.Version++
		ride.UpdatedAt = now
		r.rides[id] = ride
		changed++
	}
	return changed, nil
}

func (r *memoryRepository) IsTruckerEngaged(ctx context.Context, truckerID, excludeRideID string) (bool, error) {
	defer r.tx.Guard(ctx)()
	for id, ride := range r.rides {
		if id == excludeRideID || ride.Status != StatusAccepted {
			continue
		}
		if ride.TruckerID == truckerID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepository) ListByRequester(ctx context.Context, requesterID string, limit int) ([]RideRequest, error) {
	defer r.tx.Guard(ctx)()
	return r.list(limit, func(ride RideRequest) bool { return ride.RequesterID == requesterID }), nil
}

func (r *memoryRepository) ListPosted(ctx context.Context, limit int) ([]RideRequest, error) {
	defer r.tx.Guard(ctx)()
	return r.list(limit, func(ride RideRequest) bool { return ride.Status == StatusPosted }), nil
}

func (r *memoryRepository) list(limit int, match func(RideRequest) bool) []RideRequest {
	var out []RideRequest
	for _, ride := range r.rides {
		if match(ride) {
			out = append(out, ride.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
