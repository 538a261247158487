package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towlink/towlink/internal/infra"
)

func TestMemoryStoreListAndMarkRead(t *testing.T) {
	store := NewMemoryStore(infra.NewMemoryTransactor())
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.Insert(ctx, Record{ID: "n1", UserID: "u1", Kind: KindRideCompleted, CreatedAt: base}))
	require.NoError(t, store.Insert(ctx, Record{ID: "n2", UserID: "u1", Kind: KindRideReopened, CreatedAt: base.Add(time.Second)}))
	require.NoError(t, store.Insert(ctx, Record{ID: "n3", UserID: "u2", CreatedAt: base}))

	list, err := store.List(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n2", list[0].ID)

	assert.ErrorIs(t, store.MarkRead(ctx, "n3", "u1", base), ErrRecordNotFound)
	require.NoError(t, store.MarkRead(ctx, "n1", "u1", base))

	list, err = store.List(ctx, "u1", 10)
	require.NoError(t, err)
	assert.NotNil(t, list[1].ReadAt)
}

func TestMemoryStoreRollsBackWithUnitOfWork(t *testing.T) {
	txr := infra.NewMemoryTransactor()
	store := NewMemoryStore(txr)
	ctx := context.Background()

	err := txr.WithinTx(ctx, func(ctx context.Context) error {
		if err := store.Insert(ctx, Record{ID: "n1", UserID: "u1", CreatedAt: time.Now()}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	list, err := store.List(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}
