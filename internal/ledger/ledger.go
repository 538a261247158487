package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrWalletNotFound occurs when a wallet lookup that must not create finds nothing.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrTransactionNotFound occurs when a transaction id does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrNegativeBalance guards the store against writes that would break the
	// non-negative balance invariant.
	ErrNegativeBalance = errors.New("balance would become negative")
)

// Currency is the single currency every wallet is denominated in.
const Currency = "USD"

type TransactionType string

const (
	TypeCredit TransactionType = "credit"
	TypeDebit  TransactionType = "debit"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusConfirmed TransactionStatus = "confirmed"
	StatusCancelled TransactionStatus = "cancelled"
)

// Log actions.
const (
	ActionRequested  = "requested"
	ActionConfirmed  = "confirmed"
	ActionCancelled  = "cancelled"
	ActionDebited    = "debited"
	ActionCommission = "commission"
	ActionReversal   = "reversal"
)

// Wallet is the per-user balance. Exactly one exists per user.
type Wallet struct {
	ID                string
	UserID            string
	Balance           decimal.Decimal
	Currency          string
	LastTransactionID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LogEntry is one append-only record in a transaction's history.
type LogEntry struct {
	Action string    `json:"action"`
	Actor  string    `json:"actor"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// Transaction explains one balance delta (or a pending request for one).
type Transaction struct {
	ID            string
	UserID        string
	WalletID      string
	Type          TransactionType
	Amount        decimal.Decimal
	Status        TransactionStatus
	Proof         string
	Remarks       string
	RideRequestID string
	BalanceAfter  decimal.Decimal
	Log           []LogEntry
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TransactionFilter narrows ListTransactions. Zero fields match everything.
type TransactionFilter struct {
	UserID        string
	Status        TransactionStatus
	Type          TransactionType
	RideRequestID string
	Limit         int
}

// Store persists wallets and their transaction log. Lock* methods take a row
// lock that is held until the surrounding unit of work ends.
type Store interface {
	EnsureWallet(ctx context.Context, userID string) (Wallet, error)
	FindWallet(ctx context.Context, userID string) (Wallet, error)
	LockWallet(ctx context.Context, userID string) (Wallet, error)
	LockWalletByID(ctx context.Context, walletID string) (Wallet, error)
	UpdateBalance(ctx context.Context, walletID string, balance decimal.Decimal, lastTxID string) error
	InsertTransaction(ctx context.Context, tx Transaction) error
	LockTransaction(ctx context.Context, id string) (Transaction, error)
	SettleTransaction(ctx context.Context, id string, status TransactionStatus, balanceAfter decimal.Decimal, entry LogEntry) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}
