package ride

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towlink/towlink/internal/apperr"
	"github.com/towlink/towlink/internal/infra"
	"github.com/towlink/towlink/internal/ledger"
	"github.com/towlink/towlink/internal/logging"
	"github.com/towlink/towlink/internal/notification"
	"github.com/towlink/towlink/internal/wallet"
)

type pgFixture struct {
	svc   *Service
	repo  *PostgresRepository
	store *ledger.PostgresStore
	house string
}

// newPGFixture runs against TOWLINK_TEST_DSN and skips when it is unset.
func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	dsn := os.Getenv("TOWLINK_TEST_DSN")
	if dsn == "" {
		t.Skip("TOWLINK_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, infra.Migrate(ctx, pool, "up"))

	txr := infra.NewPostgresTransactor(pool)
	store := ledger.NewPostgresStore(pool)
	house := uuid.NewString()
	wallets := wallet.NewService(store, txr, house, logging.Discard())
	require.NoError(t, wallets.EnsureHouseWallet(ctx))

	repo := NewPostgresRepository(pool)
	svc := NewService(repo, wallets, txr, notification.NewPostgresStore(pool), &recorder{}, directory{}, logging.Discard())
	return &pgFixture{svc: svc, repo: repo, store: store, house: house}
}

func (f *pgFixture) fund(t *testing.T, amount string) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	w, err := f.store.EnsureWallet(ctx, id)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateBalance(ctx, w.ID, dec(amount), ""))
	return id
}

func (f *pgFixture) balance(t *testing.T, userID string) string {
	t.Helper()
	w, err := f.store.FindWallet(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance.StringFixed(2)
}

func (f *pgFixture) postedRide(t *testing.T, requesterID string) RideRequest {
	t.Helper()
	ctx := context.Background()
	r, err := f.svc.Create(ctx, CreateInput{
		RequesterID: requesterID,
		Origin:      Point{Lat: 40.4168, Lng: -3.7038, Address: "Gran Via 1"},
		Destination: Point{Lat: 40.4530, Lng: -3.6883, Address: "Bernabeu"},
		PickupAt:    time.Now().Add(time.Hour),
		Vehicle:     Vehicle{Category: "van"},
	})
	require.NoError(t, err)
	r, err = f.svc.Post(ctx, requesterID, r.ID)
	require.NoError(t, err)
	return r
}

func TestPostgresConcurrentAcceptsHaveOneWinner(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	requester := uuid.NewString()
	r := f.postedRide(t, requester)
	t1, t2 := f.fund(t, "20"), f.fund(t, "20")

	o1, _, err := f.svc.SubmitOffer(ctx, OfferInput{TruckerID: t1, RideID: r.ID, Price: dec("100"), ETA: "10m"})
	require.NoError(t, err)
	o2, _, err := f.svc.SubmitOffer(ctx, OfferInput{TruckerID: t2, RideID: r.ID, Price: dec("100"), ETA: "12m"})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, id := range []string{o1.ID, o2.ID} {
		wg.Add(1)
		go func(i int, offerID string) {
			defer wg.Done()
			_, errs[i] = f.svc.Accept(ctx, requester, r.ID, offerID)
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, apperr.IsCode(err, apperr.CodeNotFound), err.Error())
	}
	require.Equal(t, 1, wins)
	assert.Equal(t, "10.00", f.balance(t, f.house))

	got, err := f.repo.Get(ctx, r.ID)
	require.NoError(t, err)
	assertAcceptedOfferInvariant(t, got)
	winner := got.TruckerID
	for _, tr := range []string{t1, t2} {
		want := "20.00"
		if tr == winner {
			want = "10.00"
		}
		assert.Equal(t, want, f.balance(t, tr))
	}
}

func TestPostgresAcceptReopenRoundTrip(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	requesterA, requesterB := uuid.NewString(), uuid.NewString()
	rideA := f.postedRide(t, requesterA)
	rideB := f.postedRide(t, requesterB)
	trucker := f.fund(t, "20")

	oA, _, err := f.svc.SubmitOffer(ctx, OfferInput{TruckerID: trucker, RideID: rideA.ID, Price: dec("100"), ETA: "10m"})
	require.NoError(t, err)
	_, _, err = f.svc.SubmitOffer(ctx, OfferInput{TruckerID: trucker, RideID: rideB.ID, Price: dec("50"), ETA: "10m"})
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, requesterA, rideA.ID, oA.ID)
	require.NoError(t, err)
	b, err := f.repo.Get(ctx, rideB.ID)
	require.NoError(t, err)
	assert.False(t, b.Offers[0].Available)

	id, err := f.repo.FindRideIDByOffer(ctx, oA.ID)
	require.NoError(t, err)
	assert.Equal(t, rideA.ID, id)

	_, err = f.svc.Reopen(ctx, requesterA, rideA.ID, "no show")
	require.NoError(t, err)
	assert.Equal(t, "20.00", f.balance(t, trucker))
	assert.Equal(t, "0.00", f.balance(t, f.house))

	a, err := f.repo.Get(ctx, rideA.ID)
	require.NoError(t, err)
	assertAcceptedOfferInvariant(t, a)
	assert.Equal(t, StatusPosted, a.Status)
	require.NotNil(t, a.Reopen)
	assert.Equal(t, "no show", a.Reopen.Reason)
	assert.True(t, a.Offers[0].Released)

	b, err = f.repo.Get(ctx, rideB.ID)
	require.NoError(t, err)
	assert.True(t, b.Offers[0].Available)
}

func TestPostgresAcceptCompleteRestoresOffers(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	requesterA, requesterB := uuid.NewString(), uuid.NewString()
	rideA := f.postedRide(t, requesterA)
	rideB := f.postedRide(t, requesterB)
	trucker := f.fund(t, "20")

	oA, _, err := f.svc.SubmitOffer(ctx, OfferInput{TruckerID: trucker, RideID: rideA.ID, Price: dec("100"), ETA: "10m"})
	require.NoError(t, err)
	_, _, err = f.svc.SubmitOffer(ctx, OfferInput{TruckerID: trucker, RideID: rideB.ID, Price: dec("50"), ETA: "10m"})
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, requesterA, rideA.ID, oA.ID)
	require.NoError(t, err)
	b, err := f.repo.Get(ctx, rideB.ID)
	require.NoError(t, err)
	assert.False(t, b.Offers[0].Available)

	_, err = f.svc.Complete(ctx, trucker, rideA.ID)
	require.NoError(t, err)

	a, err := f.repo.Get(ctx, rideA.ID)
	require.NoError(t, err)
	assertAcceptedOfferInvariant(t, a)
	assert.Equal(t, StatusCompleted, a.Status)
	assert.Empty(t, a.AcceptedOfferID)
	assert.Equal(t, trucker, a.TruckerID)
	assert.Equal(t, "10.00", f.balance(t, trucker))

	b, err = f.repo.Get(ctx, rideB.ID)
	require.NoError(t, err)
	assert.True(t, b.Offers[0].Available)
}

func TestPostgresCancelAcceptedRefunds(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	requesterA, requesterB := uuid.NewString(), uuid.NewString()
	rideA := f.postedRide(t, requesterA)
	rideB := f.postedRide(t, requesterB)
	trucker := f.fund(t, "20")

	oA, _, err := f.svc.SubmitOffer(ctx, OfferInput{TruckerID: trucker, RideID: rideA.ID, Price: dec("100"), ETA: "10m"})
	require.NoError(t, err)
	_, _, err = f.svc.SubmitOffer(ctx, OfferInput{TruckerID: trucker, RideID: rideB.ID, Price: dec("50"), ETA: "10m"})
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, requesterA, rideA.ID, oA.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, requesterA, rideA.ID)
	require.NoError(t, err)

	a, err := f.repo.Get(ctx, rideA.ID)
	require.NoError(t, err)
	assertAcceptedOfferInvariant(t, a)
	assert.Equal(t, StatusCancelled, a.Status)
	assert.Empty(t, a.AcceptedOfferID)
	assert.True(t, a.Commission.IsZero())
	assert.Equal(t, "20.00", f.balance(t, trucker))
	assert.Equal(t, "0.00", f.balance(t, f.house))

	b, err := f.repo.Get(ctx, rideB.ID)
	require.NoError(t, err)
	assert.True(t, b.Offers[0].Available)
}

func TestPostgresConcurrentAcceptsOfOneTrucker(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	requesterA, requesterB := uuid.NewString(), uuid.NewString()
	rideA := f.postedRide(t, requesterA)
	rideB := f.postedRide(t, requesterB)
	trucker := f.fund(t, "50")

	oA, _, err := f.svc.SubmitOffer(ctx, OfferInput{TruckerID: trucker, RideID: rideA.ID, Price: dec("100"), ETA: "10m"})
	require.NoError(t, err)
	oB, _, err := f.svc.SubmitOffer(ctx, OfferInput{TruckerID: trucker, RideID: rideB.ID, Price: dec("100"), ETA: "10m"})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, call := range [][3]string{{requesterA, rideA.ID, oA.ID}, {requesterB, rideB.ID, oB.ID}} {
		wg.Add(1)
		go func(i int, c [3]string) {
			defer wg.Done()
			_, errs[i] = f.svc.Accept(ctx, c[0], c[1], c[2])
		}(i, call)
	}
	wg.Wait()

	require.True(t, (errs[0] == nil) != (errs[1] == nil), "a=%v b=%v", errs[0], errs[1])
	loserErr := errs[0]
	if loserErr == nil {
		loserErr = errs[1]
	}
	// A deadlock abort would surface as a conflict, not as the offer being taken.
	require.True(t, apperr.IsCode(loserErr, apperr.CodeNotFound), loserErr.Error())
	assert.Equal(t, apperr.ReasonUnavailable, apperr.As(loserErr).Reason())
	assert.Equal(t, "40.00", f.balance(t, trucker))
	assert.Equal(t, "10.00", f.balance(t, f.house))
}
