package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// SeedBalance is a test helper that sets the balance of a user's wallet when
// using the in-memory store, creating the wallet if needed.
func SeedBalance(s Store, userID string, amount decimal.Decimal) {
	mem, ok := s.(*inMemoryStore)
	if !ok {
		return
	}
	w, err := mem.EnsureWallet(context.Background(), userID)
	if err != nil {
		return
	}
	unlock := mem.tx.Guard(context.Background())
	defer unlock()
	w.Balance = amount
	mem.wallets[w.ID] = w
}
