package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/towlink/towlink/internal/infra"
)

// PostgresStore persists notification records in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `INSERT INTO notifications (id, user_id, role, kind, title, body, ride_request_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`,
		rec.ID, rec.UserID, rec.Role, rec.Kind, rec.Title, rec.Body, rec.RideRequestID, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := infra.Conn(ctx, s.db).Query(ctx, `SELECT id, user_id, role, kind, title, body, COALESCE(ride_request_id, ''), read_at, created_at
        FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Role, &rec.Kind, &rec.Title, &rec.Body, &rec.RideRequestID, &rec.ReadAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	tag, err := infra.Conn(ctx, s.db).Exec(ctx, `UPDATE notifications SET read_at = COALESCE(read_at, $1)
        WHERE id = $2 AND user_id = $3`, at.UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}
