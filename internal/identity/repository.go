package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/towlink/towlink/internal/infra"
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	FindMany(ctx context.Context, ids []string) ([]User, error)
	UpdateLocation(ctx context.Context, id string, lat, lng float64) error
	UpdateTokenVersion(ctx context.Context, id string, version int) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, phone, name, photo_url, role, lat, lng, pin_hash, token_version, created_at`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (id, phone, name, photo_url, role, lat, lng, pin_hash, token_version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.Phone, user.Name, user.PhotoURL, user.Role, user.Lat, user.Lng, user.PINHash, user.TokenVersion, user.CreatedAt.UTC())
	if infra.IsUniqueViolation(err) {
		return ErrUserExists
	}
	return err
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone))
}

// FindByID fetches a user by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindMany fetches every user whose id is listed. Unknown ids are skipped.
func (r *PostgresRepository) FindMany(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateLocation stores the user's last known coordinates.
func (r *PostgresRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET lat = $1, lng = $2 WHERE id = $3`, lat, lng, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateTokenVersion invalidates tokens issued with an older version.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET token_version = $1 WHERE id = $2`, version, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Phone, &user.Name, &user.PhotoURL, &user.Role, &user.Lat, &user.Lng,
		&user.PINHash, &user.TokenVersion, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}
