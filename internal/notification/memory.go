package notification

import (
	"context"
	"sort"
	"time"

	"github.com/towlink/towlink/internal/infra"
)

type memoryStore struct {
	tx      *infra.MemoryTransactor
	records map[string]Record
}

// NewMemoryStore returns an in-process Store that takes part in tx's units of work.
func NewMemoryStore(tx *infra.MemoryTransactor) Store {
	s := &memoryStore{tx: tx, records: make(map[string]Record)}
	tx.Register(s)
	return s
}

func (s *memoryStore) Snapshot() func() {
	saved := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		saved[k] = v
	}
	return func() { s.records = saved }
}

func (s *memoryStore) Insert(ctx context.Context, rec Record) error {
	defer s.tx.Guard(ctx)()
	s.records[rec.ID] = rec
	return nil
}

func (s *memoryStore) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	defer s.tx.Guard(ctx)()
	var out []Record
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
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
	return out, nil
}

func (s *memoryStore) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	defer s.tx.Guard(ctx)()
	rec, ok := s.records[id]
	if !ok || rec.UserID != userID {
		return ErrRecordNotFound
	}
	if rec.ReadAt == nil {
		at = at.UTC()
		rec.ReadAt = &at
		s.records[id] = rec
	}
	return nil
}
