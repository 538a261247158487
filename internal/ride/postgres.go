package ride

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/towlink/towlink/internal/infra"
)

// PostgresRepository stores ride requests with their offers embedded as JSONB.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed ride repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const rideColumns = `id, requester_id,
        origin_lat, origin_lng, origin_address,
        destination_lat, destination_lng, destination_address,
        pickup_at, vehicle_category, vehicle_load, vehicle_wheels,
        status, version, COALESCE(accepted_offer_id, ''), COALESCE(trucker_id, ''), commission, offers,
        COALESCE(reopened_by, ''), COALESCE(reopen_reason, ''), reopened_at,
        accepted_at, completed_at, cancelled_at, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, ride RideRequest) error {
	offers, err := encodeOffers(ride.Offers)
	if err != nil {
		return err
	}
	_, err = infra.Conn(ctx, r.db).Exec(ctx, `INSERT INTO ride_requests (
            id, requester_id,
            origin_lat, origin_lng, origin_address,
            destination_lat, destination_lng, destination_address,
            pickup_at, vehicle_category, vehicle_load, vehicle_wheels,
            status, version, commission, offers, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)`,
		ride.ID, ride.RequesterID,
		ride.Origin.Lat, ride.Origin.Lng, ride.Origin.Address,
		ride.Destination.Lat, ride.Destination.Lng, ride.Destination.Address,
		ride.PickupAt.UTC(), ride.Vehicle.Category, ride.Vehicle.LoadState, ride.Vehicle.WheelState,
		string(ride.Status), ride.Version, ride.Commission, offers, ride.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert ride request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (RideRequest, error) {
	row := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+rideColumns+` FROM ride_requests WHERE id = $1`, id)
	return scanRide(row)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (RideRequest, error) {
	row := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+rideColumns+` FROM ride_requests WHERE id = $1 FOR UPDATE`, id)
	return scanRide(row)
}

func (r *PostgresRepository) FindRideIDByOffer(ctx context.Context, offerID string) (string, error) {
	var id string
	err := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT id FROM ride_requests
        WHERE offers @> jsonb_build_array(jsonb_build_object('id', $1::text))`, offerID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find ride by offer: %w", err)
	}
	return id, nil
}

// Update writes the aggregate back guarded by (id, status, version).
func (r *PostgresRepository) Update(ctx context.Context, ride RideRequest, expected Status) error {
	offers, err := encodeOffers(ride.Offers)
	if err != nil {
		return err
	}
	var reopenedBy, reopenReason string
	var reopenedAt *time.Time
	if ride.Reopen != nil {
		reopenedBy, reopenReason, reopenedAt = ride.Reopen.ActorID, ride.Reopen.Reason, &ride.Reopen.At
	}
	tag, err := infra.Conn(ctx, r.db).Exec(ctx, `UPDATE ride_requests SET
            status = $1, version = version + 1, accepted_offer_id = NULLIF($2, ''),
            trucker_id = NULLIF($15, ''), commission = $3, offers = $4,
            reopened_by = NULLIF($5, ''), reopen_reason = NULLIF($6, ''), reopened_at = $7,
            accepted_at = $8, completed_at = $9, cancelled_at = $10, updated_at = $11
        WHERE id = $12 AND status = $13 AND version = $14`,
		string(ride.Status), ride.AcceptedOfferID,
		ride.Commission, offers,
		reopenedBy, reopenReason, reopenedAt,
		ride.AcceptedAt, ride.CompletedAt, ride.CancelledAt, ride.UpdatedAt.UTC(),
		ride.ID, string(expected), ride.Version, ride.TruckerID)
	if err != nil {
		return fmt.Errorf("update ride request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

// SetTruckerAvailability rewrites the matching offers of every other posted
// ride in one statement.
func (r *PostgresRepository) SetTruckerAvailability(ctx context.Context, truckerID, excludeRideID string, available bool) (int, error) {
	tag, err := infra.Conn(ctx, r.db).Exec(ctx, `UPDATE ride_requests rr SET
            offers = (
                SELECT jsonb_agg(
                    CASE WHEN o.elem->>'truck_id' = $1 AND NOT COALESCE((o.elem->>'released')::boolean, false)
                        THEN jsonb_set(o.elem, '{available}', to_jsonb($2::boolean))
                        ELSE o.elem
                    END ORDER BY o.pos)
                FROM jsonb_array_elements(rr.offers) WITH ORDINALITY AS o(elem, pos)
            ),
            version = version + 1,
            updated_at = $4
        WHERE rr.status = 'posted'
          AND rr.id <> $3
          AND rr.offers @> jsonb_build_array(jsonb_build_object('truck_id', $1::text))`,
		truckerID, available, excludeRideID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("set trucker availability: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) IsTruckerEngaged(ctx context.Context, truckerID, excludeRideID string) (bool, error) {
	var engaged bool
	err := infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT EXISTS (
            SELECT 1 FROM ride_requests
            WHERE status = 'accepted' AND trucker_id = $1 AND id <> $2
        )`, truckerID, excludeRideID).Scan(&engaged)
	if err != nil {
		return false, fmt.Errorf("check trucker engagement: %w", err)
	}
	return engaged, nil
}

func (r *PostgresRepository) ListByRequester(ctx context.Context, requesterID string, limit int) ([]RideRequest, error) {
	return r.list(ctx, `SELECT `+rideColumns+` FROM ride_requests
        WHERE requester_id = $1 ORDER BY created_at DESC, id LIMIT $2`, requesterID, limit)
}

func (r *PostgresRepository) ListPosted(ctx context.Context, limit int) ([]RideRequest, error) {
	return r.list(ctx, `SELECT `+rideColumns+` FROM ride_requests
        WHERE status = 'posted' ORDER BY created_at DESC, id LIMIT $1`, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]RideRequest, error) {
	rows, err := infra.Conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ride requests: %w", err)
	}
	defer rows.Close()

	var out []RideRequest
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ride)
	}
	return out, rows.Err()
}

func encodeOffers(offers []Offer) ([]byte, error) {
	if offers == nil {
		offers = []Offer{}
	}
	b, err := json.Marshal(offers)
	if err != nil {
		return nil, fmt.Errorf("encode offers: %w", err)
	}
	return b, nil
}

func scanRide(row pgx.Row) (RideRequest, error) {
	var (
		ride         RideRequest
		status       string
		commission   decimal.Decimal
		offersJSON   []byte
		reopenedBy   string
		reopenReason string
		reopenedAt   *time.Time
	)
	err := row.Scan(&ride.ID, &ride.RequesterID,
		&ride.Origin.Lat, &ride.Origin.Lng, &ride.Origin.Address,
		&ride.Destination.Lat, &ride.Destination.Lng, &ride.Destination.Address,
		&ride.PickupAt, &ride.Vehicle.Category, &ride.Vehicle.LoadState, &ride.Vehicle.WheelState,
		&status, &ride.Version, &ride.AcceptedOfferID, &ride.TruckerID, &commission, &offersJSON,
		&reopenedBy, &reopenReason, &reopenedAt,
		&ride.AcceptedAt, &ride.CompletedAt, &ride.CancelledAt, &ride.CreatedAt, &ride.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RideRequest{}, ErrNotFound
	}
	if err != nil {
		return RideRequest{}, fmt.Errorf("scan ride request: %w", err)
	}
	ride.Status = Status(status)
	ride.Commission = commission
	if len(offersJSON) > 0 {
		if err := json.Unmarshal(offersJSON, &ride.Offers); err != nil {
			return RideRequest{}, fmt.Errorf("decode offers: %w", err)
		}
	}
	if reopenedAt != nil {
		ride.Reopen = &ReopenInfo{ActorID: reopenedBy, Reason: reopenReason, At: reopenedAt.UTC()}
	}
	ride.PickupAt = ride.PickupAt.UTC()
	ride.CreatedAt = ride.CreatedAt.UTC()
	ride.UpdatedAt = ride.UpdatedAt.UTC()
	return ride, nil
}
