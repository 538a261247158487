package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/towlink/towlink/internal/infra"
)

// PostgresStore persists wallets and transactions in PostgreSQL. Calls made
// with a context from infra.Transactor run inside that transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const walletColumns = `id, user_id, balance, currency, COALESCE(last_transaction_id, ''), created_at, updated_at`

// EnsureWallet creates the wallet when missing and returns it. Concurrent first
// access is resolved by the unique user_id constraint.
func (s *PostgresStore) EnsureWallet(ctx context.Context, userID string) (Wallet, error) {
	conn := infra.Conn(ctx, s.db)
	now := time.Now().UTC()
	if _, err := conn.Exec(ctx, `INSERT INTO wallets (id, user_id, balance, currency, created_at, updated_at)
        VALUES ($1, $2, 0, $3, $4, $4)
        ON CONFLICT (user_id) DO NOTHING`, uuid.NewString(), userID, Currency, now); err != nil {
		return Wallet{}, fmt.Errorf("ensure wallet: %w", err)
	}
	return s.FindWallet(ctx, userID)
}

// FindWallet fetches the wallet owned by userID.
func (s *PostgresStore) FindWallet(ctx context.Context, userID string) (Wallet, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	return scanWallet(row)
}

// LockWallet fetches the wallet owned by userID with FOR UPDATE.
func (s *PostgresStore) LockWallet(ctx context.Context, userID string) (Wallet, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	return scanWallet(row)
}

// LockWalletByID fetches a wallet by its id with FOR UPDATE.
func (s *PostgresStore) LockWalletByID(ctx context.Context, walletID string) (Wallet, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, walletID)
	return scanWallet(row)
}

// UpdateBalance stores the new balance and the transaction that explains it.
func (s *PostgresStore) UpdateBalance(ctx context.Context, walletID string, balance decimal.Decimal, lastTxID string) error {
	if balance.IsNegative() {
		return ErrNegativeBalance
	}
	tag, err := infra.Conn(ctx, s.db).Exec(ctx, `UPDATE wallets
        SET balance = $1, last_transaction_id = NULLIF($2, ''), updated_at = $3
        WHERE id = $4`, balance, lastTxID, time.Now().UTC(), walletID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// InsertTransaction appends a transaction record.
func (s *PostgresStore) InsertTransaction(ctx context.Context, tx Transaction) error {
	logJSON, err := json.Marshal(tx.Log)
	if err != nil {
		return fmt.Errorf("encode transaction log: %w", err)
	}
	_, err = infra.Conn(ctx, s.db).Exec(ctx, `INSERT INTO wallet_transactions (
            id, user_id, wallet_id, type, amount, status, proof, remarks,
            ride_request_id, balance_after, log, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $12)`,
		tx.ID, tx.UserID, tx.WalletID, string(tx.Type), tx.Amount, string(tx.Status), tx.Proof, tx.Remarks,
		tx.RideRequestID, tx.BalanceAfter, logJSON, tx.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

const transactionColumns = `id, user_id, wallet_id, type, amount, status, proof, remarks,
        COALESCE(ride_request_id, ''), balance_after, log, created_at, updated_at`

// LockTransaction fetches a transaction with FOR UPDATE.
func (s *PostgresStore) LockTransaction(ctx context.Context, id string) (Transaction, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1 FOR UPDATE`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return tx, err
}

// SettleTransaction moves a pending transaction to its terminal status and
// appends entry to its log. The status guard makes a second settle a no-op
// reported as ErrTransactionNotFound.
func (s *PostgresStore) SettleTransaction(ctx context.Context, id string, status TransactionStatus, balanceAfter decimal.Decimal, entry LogEntry) error {
	entryJSON, err := json.Marshal([]LogEntry{entry})
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}
	tag, err := infra.Conn(ctx, s.db).Exec(ctx, `UPDATE wallet_transactions
        SET status = $1, balance_after = $2, log = log || $3::jsonb, updated_at = $4
        WHERE id = $5 AND status = $6`,
		string(status), balanceAfter, entryJSON, time.Now().UTC(), id, string(StatusPending))
	if err != nil {
		return fmt.Errorf("settle transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// ListTransactions returns transactions newest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.RideRequestID != "" {
		add("ride_request_id = $%d", filter.RideRequestID)
	}

	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := infra.Conn(ctx, s.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.LastTransactionID, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx      Transaction
		typ     string
		status  string
		logJSON []byte
	)
	if err := row.Scan(&tx.ID, &tx.UserID, &tx.WalletID, &typ, &tx.Amount, &status, &tx.Proof, &tx.Remarks,
		&tx.RideRequestID, &tx.BalanceAfter, &logJSON, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	tx.Type = TransactionType(typ)
	tx.Status = TransactionStatus(status)
	if len(logJSON) > 0 {
		if err := json.Unmarshal(logJSON, &tx.Log); err != nil {
			return Transaction{}, fmt.Errorf("decode transaction log: %w", err)
		}
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return tx, nil
}
