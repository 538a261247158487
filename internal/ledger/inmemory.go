package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/towlink/towlink/internal/infra"
)

type inMemoryStore struct {
	tx           *infra.MemoryTransactor
	wallets      map[string]Wallet // by wallet id
	byUser       map[string]string // user id -> wallet id
	transactions map[string]Transaction
}

// NewInMemory returns a Store backed by maps. The store registers itself with
// tx so units of work roll it back on failure.
func NewInMemory(tx *infra.MemoryTransactor) Store {
	s := &inMemoryStore{
		tx:           tx,
		wallets:      make(map[string]Wallet),
		byUser:       make(map[string]string),
		transactions: make(map[string]Transaction),
	}
	tx.Register(s)
	return s
}

func (s *inMemoryStore) Snapshot() func() {
	wallets := make(map[string]Wallet, len(s.wallets))
	for k, v := range s.wallets {
		wallets[k] = v
	}
	byUser := make(map[string]string, len(s.byUser))
	for k, v := range s.byUser {
		byUser[k] = v
	}
	transactions := make(map[string]Transaction, len(s.transactions))
	for k, v := range s.transactions {
		v.Log = append([]LogEntry(nil), v.Log...)
		transactions[k] = v
	}
	return func() {
		s.wallets = wallets
		s.byUser = byUser
		s.transactions = transactions
	}
}

func (s *inMemoryStore) EnsureWallet(ctx context.Context, userID string) (Wallet, error) {
	defer s.tx.Guard(ctx)()
	if id, ok := s.byUser[userID]; ok {
		return s.wallets[id], nil
	}
	now := time.Now().UTC()
	w := Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Balance:   decimal.Zero,
		Currency:  Currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wallets[w.ID] = w
	s.byUser[userID] = w.ID
	return w, nil
}

func (s *inMemoryStore) FindWallet(ctx context.Context, userID string) (Wallet, error) {
	defer s.tx.Guard(ctx)()
	return s.walletByUser(userID)
}

// LockWallet is FindWallet: the transactor lock already serializes writers.
func (s *inMemoryStore) LockWallet(ctx context.Context, userID string) (Wallet, error) {
	return s.FindWallet(ctx, userID)
}

func (s *inMemoryStore) LockWalletByID(ctx context.Context, walletID string) (Wallet, error) {
	defer s.tx.Guard(ctx)()
	w, ok := s.wallets[walletID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (s *inMemoryStore) UpdateBalance(ctx context.Context, walletID string, balance decimal.Decimal, lastTxID string) error {
	if balance.IsNegative() {
		return ErrNegativeBalance
	}
	defer s.tx.Guard(ctx)()
	w, ok := s.wallets[walletID]
	if !ok {
		return ErrWalletNotFound
	}
	w.Balance = balance
	w.LastTransactionID = lastTxID
	w.UpdatedAt = time.Now().UTC()
	s.wallets[walletID] = w
	return nil
}

func (s *inMemoryStore) InsertTransaction(ctx context.Context, tx Transaction) error {
	defer s.tx.Guard(ctx)()
	tx.Log = append([]LogEntry(nil), tx.Log...)
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = tx.CreatedAt
	}
	s.transactions[tx.ID] = tx
	return nil
}

func (s *inMemoryStore) LockTransaction(ctx context.Context, id string) (Transaction, error) {
	defer s.tx.Guard(ctx)()
	tx, ok := s.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	tx.Log = append([]LogEntry(nil), tx.Log...)
	return tx, nil
}

func (s *inMemoryStore) SettleTransaction(ctx context.Context, id string, status TransactionStatus, balanceAfter decimal.Decimal, entry LogEntry) error {
	defer s.tx.Guard(ctx)()
	tx, ok := s.transactions[id]
	if !ok || tx.Status != StatusPending {
		return ErrTransactionNotFound
	}
	tx.Status = status
	tx.BalanceAfter = balanceAfter
	tx.Log = append(append([]LogEntry(nil), tx.Log...), entry)
	tx.UpdatedAt = time.Now().UTC()
	s.transactions[id] = tx
	return nil
}

func (s *inMemoryStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	defer s.tx.Guard(ctx)()
	var out []Transaction
	for _, tx := range s.transactions {
		if filter.UserID != "" && tx.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.RideRequestID != "" && tx.RideRequestID != filter.RideRequestID {
			continue
		}
		tx.Log = append([]LogEntry(nil), tx.Log...)
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *inMemoryStore) walletByUser(userID string) (Wallet, error) {
	id, ok := s.byUser[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return s.wallets[id], nil
}
