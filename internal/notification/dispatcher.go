package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/towlink/towlink/internal/metrics"
)

const sendTimeout = 3 * time.Second

// Dispatcher is the outbound queue between committed state changes and the
// push sinks. Enqueue never blocks: when the queue is full the event is
// dropped, because a missed push never affects committed state.
type Dispatcher struct {
	sink   Notifier
	queue  chan Event
	logger zerolog.Logger

	once sync.Once
	done chan struct{}
}

// NewDispatcher builds a dispatcher with a queue of the given capacity.
func NewDispatcher(sink Notifier, size int, logger zerolog.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	return &Dispatcher{
		sink:   sink,
		queue:  make(chan Event, size),
		logger: logger.With().Str("component", "dispatcher").Logger(),
		done:   make(chan struct{}),
	}
}

// Enqueue schedules events for delivery.
func (d *Dispatcher) Enqueue(events ...Event) {
	for _, e := range events {
		if e.At.IsZero() {
			e.At = time.Now().UTC()
		}
		select {
		case d.queue <- e:
		default:
			metrics.PushQueueDropped.Inc()
			d.logger.Warn().Str("kind", e.Kind).Str("room", e.Room()).Msg("push queue full, event dropped")
		}
	}
}

// Run drains the queue until ctx is cancelled, then delivers what is left.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case e := <-d.queue:
			d.deliver(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-d.queue:
					d.deliver(e)
				default:
					return
				}
			}
		}
	}
}

// Start runs the worker in its own goroutine. Calling it twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.once.Do(func() { go d.Run(ctx) })
}

// Wait blocks until Run has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) deliver(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := d.sink.Send(ctx, e); err != nil {
		metrics.PushEvents.WithLabelValues("dispatcher", metrics.OutcomeError).Inc()
		d.logger.Warn().Err(err).Str("kind", e.Kind).Str("room", e.Room()).Msg("push delivery failed")
		return
	}
	metrics.PushEvents.WithLabelValues("dispatcher", metrics.OutcomeOK).Inc()
}
