package infra

import (
	"context"
	"sync"
)

// Snapshotter is implemented by in-memory repositories taking part in a
// MemoryTransactor unit of work. Snapshot captures the current state and
// returns a function restoring it.
type Snapshotter interface {
	Snapshot() (restore func())
}

type memTxKey struct{}

// MemoryTransactor serializes units of work behind one lock and restores every
// registered repository when fn fails.
type MemoryTransactor struct {
	mu           sync.Mutex
	participants []Snapshotter
}

// NewMemoryTransactor builds an empty in-memory transactor.
func NewMemoryTransactor() *MemoryTransactor {
	return &MemoryTransactor{}
}

// Register adds a repository to every future unit of work.
func (t *MemoryTransactor) Register(p Snapshotter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.participants = append(t.participants, p)
}

func (t *MemoryTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if t.inTx(ctx) {
		return fn(ctx)
	}

	txCtx, hooks := withCommitHooks(context.WithValue(ctx, memTxKey{}, t))
	if err := t.run(txCtx, fn); err != nil {
		return err
	}
	hooks.run()
	return nil
}

func (t *MemoryTransactor) run(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	restores := make([]func(), 0, len(t.participants))
	for _, p := range t.participants {
		restores = append(restores, p.Snapshot())
	}

	if err := fn(ctx); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// Guard locks the store for a single repository call made outside a unit of
// work. Inside a unit of work the lock is already held and Guard is a no-op.
func (t *MemoryTransactor) Guard(ctx context.Context) (unlock func()) {
	if t.inTx(ctx) {
		return func() {}
	}
	t.mu.Lock()
	return t.mu.Unlock
}

func (t *MemoryTransactor) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(memTxKey{}).(*MemoryTransactor)
	return ok && owner == t
}
