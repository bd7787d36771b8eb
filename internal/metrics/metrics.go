// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Assignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vgoat_assignments_total",
			Help: "Visitors bucketed into a variant",
		},
		[]string{"variant"},
	)

	EventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vgoat_events_recorded_total",
			Help: "Events appended with their counter increment",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vgoat_events_dropped_total",
			Help: "Events that were not recorded",
		},
		[]string{"type", "reason"},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vgoat_lifecycle_transitions_total",
			Help: "Experiment status transitions",
		},
		[]string{"from", "to"},
	)

	AutoWinnerEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vgoat_auto_winner_evaluations_total",
			Help: "Auto-winner evaluations by outcome",
		},
		[]string{"outcome"},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vgoat_storage_errors_total",
			Help: "Storage operations that failed with a storage error",
		},
		[]string{"operation"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vgoat_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vgoat_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vgoat_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)
)

// ObserveRequest records one HTTP request.
func ObserveRequest(method, route, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
