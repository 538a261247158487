package notification

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towlink/towlink/internal/logging"
)

func TestRelayForwardsPublishedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	local := &recordingNotifier{}
	relay := NewRelay(client, "", local, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, relay.Subscribe(ctx))

	pub := NewRedisNotifier(client, "")
	require.NoError(t, pub.Send(ctx, Event{Kind: KindRideReopened, Role: "trucker", UserID: "t1", RideRequestID: "r1"}))

	require.Eventually(t, func() bool { return len(local.kinds()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{KindRideReopened}, local.kinds())
	local.mu.Lock()
	assert.Equal(t, "trucker:t1", local.events[0].Room())
	local.mu.Unlock()
}
