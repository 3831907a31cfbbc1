// Package metrics holds all Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the engine's counters and histograms. Consumers accept a
// nil *Metrics and skip recording, which keeps tests free of registry setup.
type Metrics struct {
	Transitions     *prometheus.CounterVec
	Approvals       *prometheus.CounterVec
	Assignments     prometheus.Counter
	AutoEscalations prometheus.Counter
	SweepDuration   prometheus.Histogram
	HTTPDuration    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ems_transitions_total",
			Help: "Total successful exception status transitions.",
		}, []string{"from", "to"}),
		Approvals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ems_approvals_total",
			Help: "Total approval decisions recorded.",
		}, []string{"decision"}),
		Assignments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ems_assignments_total",
			Help: "Total exception reassignments.",
		}),
		AutoEscalations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ems_auto_escalations_total",
			Help: "Total exceptions escalated by the SLA sweeper.",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ems_sweep_duration_seconds",
			Help:    "Duration of SLA sweeper ticks.",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ems_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordTransition increments the transition counter when metrics are enabled.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

// RecordApproval increments the approval counter by decision.
func (m *Metrics) RecordApproval(decision string) {
	if m == nil {
		return
	}
	m.Approvals.WithLabelValues(decision).Inc()
}

// RecordAssignment increments the reassignment counter.
func (m *Metrics) RecordAssignment() {
	if m == nil {
		return
	}
	m.Assignments.Inc()
}

// RecordAutoEscalation increments the sweeper escalation counter.
func (m *Metrics) RecordAutoEscalation() {
	if m == nil {
		return
	}
	m.AutoEscalations.Inc()
}

// ObserveSweep records one sweep tick's duration in seconds.
func (m *Metrics) ObserveSweep(seconds float64) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(seconds)
}

// ObserveHTTP records one request's latency.
func (m *Metrics) ObserveHTTP(method, route string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}
