// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// GuidanceDuration tracks guidance service call duration.
	GuidanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guidance_call_duration_seconds",
			Help:    "Guidance service call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 18, 30},
		},
		[]string{"provider", "status"},
	)

	// RoundsTotal tracks reflection rounds started.
	RoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reflection_rounds_total",
			Help: "Total reflection rounds started",
		},
		[]string{"input_mode"},
	)

	// TurnsTotal tracks guidance turns applied to rounds.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reflection_turns_total",
			Help: "Total guidance turns applied",
		},
		[]string{"provider"},
	)

	// FallbackStepsTotal tracks calming fallback steps appended after failed
	// guidance calls.
	FallbackStepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reflection_fallback_steps_total",
			Help: "Total fallback steps appended after guidance failures",
		},
	)

	// RiskTurnsTotal tracks turns flagged with an actionable risk level.
	RiskTurnsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reflection_risk_turns_total",
			Help: "Total turns with an actionable risk signal",
		},
	)

	// JournalEntriesTotal tracks rounds persisted to the journal.
	JournalEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "journal_entries_total",
			Help: "Total journal entries persisted",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}
