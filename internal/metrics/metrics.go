// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ephemeral store
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "focusflow_store_operation_duration_seconds",
			Help:    "Duration of ephemeral store operations in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"}, // outcome: ok, error
	)

	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusflow_store_retries_total",
			Help: "Total number of retried ephemeral store calls",
		},
		[]string{"operation"},
	)

	FailOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusflow_fail_open_total",
			Help: "Total number of operations that fell back to a default after a store error",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "focusflow_store_circuit_breaker_state",
			Help: "Store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusflow_rate_limit_rejections_total",
			Help: "Total number of calls rejected by a per-user rate limit",
		},
		[]string{"endpoint"},
	)

	// Domain
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusflow_session_transitions_total",
			Help: "Total number of focus session lifecycle transitions",
		},
		[]string{"transition", "type"},
	)

	PointsAwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "focusflow_points_awarded_total",
			Help: "Total number of leaderboard points awarded",
		},
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "focusflow_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	WebSocketSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "focusflow_websocket_subscribers",
			Help: "Current number of room event websocket subscribers",
		},
	)
)

// RecordStoreOperation records one logical store operation.
func RecordStoreOperation(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	StoreOperationDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
