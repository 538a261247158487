package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Transactor runs a function as one all-or-nothing unit of work. Repositories
// called with the context handed to fn take part in the same unit. Nested calls
// join the outer unit.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTxKey struct{}

// PostgresTransactor stores the open pgx.Tx in the context.
type PostgresTransactor struct {
	db *pgxpool.Pool
}

// NewPostgresTransactor builds a transactor over the pool.
func NewPostgresTransactor(db *pgxpool.Pool) *PostgresTransactor {
	return &PostgresTransactor{db: db}
}

// WithinTx begins a read-committed transaction, commits when fn succeeds and
// rolls back otherwise. AfterCommit hooks run once the commit went through.
func (t *PostgresTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	txCtx, hooks := withCommitHooks(context.WithValue(ctx, pgTxKey{}, tx))
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	hooks.run()
	return nil
}

// Conn returns the transaction bound to ctx, or the pool when there is none.
func Conn(ctx context.Context, db *pgxpool.Pool) DBTX {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}
