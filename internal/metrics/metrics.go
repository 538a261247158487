package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "towlink"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Ride request transitions by outcome"},
		[]string{"transition", "outcome"},
	)
	WalletOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "wallet_operations_total", Help: "Wallet ledger operations by outcome"},
		[]string{"operation", "outcome"},
	)
	PushEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "push_events_total", Help: "Post-commit push events by sink and outcome"},
		[]string{"sink", "outcome"},
	)
	PushQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "push_queue_dropped_total", Help: "Push events dropped because the queue was full"},
	)
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "ws_connections", Help: "Open push gateway connections"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Outcome maps an operation error to an outcome label.
func Outcome(err error, rejected func(error) bool) string {
	switch {
	case err == nil:
		return OutcomeOK
	case rejected != nil && rejected(err):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
