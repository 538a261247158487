package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/towlink/towlink/internal/metrics"
)

// DefaultChannel is the pub/sub channel shared by every API instance.
const DefaultChannel = "towlink:push"

// RedisNotifier publishes events so every instance's hub can deliver them to
// the sessions it holds.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		metrics.PushEvents.WithLabelValues("redis", metrics.OutcomeError).Inc()
		return fmt.Errorf("publish event: %w", err)
	}
	metrics.PushEvents.WithLabelValues("redis", metrics.OutcomeOK).Inc()
	return nil
}

// Relay forwards events published on the shared channel to a local notifier,
// usually the Hub.
type Relay struct {
	client  *redis.Client
	channel string
	local   Notifier
	logger  zerolog.Logger
}

func NewRelay(client *redis.Client, channel string, local Notifier, logger zerolog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{client: client, channel: channel, local: local, logger: logger.With().Str("component", "push_relay").Logger()}
}

// Subscribe joins the channel and returns once the subscription is active.
// Messages are forwarded until ctx is cancelled.
func (r *Relay) Subscribe(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	go r.forward(ctx, sub)
	return nil
}

func (r *Relay) forward(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn().Err(err).Msg("malformed push event")
				continue
			}
			if err := r.local.Send(ctx, event); err != nil {
				r.logger.Warn().Err(err).Str("kind", event.Kind).Msg("relay delivery failed")
			}
		}
	}
}
