// Package metrics holds the Prometheus instruments for leadgate.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Unlock outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeEmpty        = "empty"
	OutcomeInsufficient = "insufficient"
	OutcomeInProgress   = "in_progress"
	OutcomeRejected     = "rejected"
	OutcomeFailed       = "failed"
	OutcomeTimeout      = "timeout"
)

// Session load outcomes.
const (
	LoadReady   = "ready"
	LoadPartial = "partial"
	LoadError   = "error"
)

// Metrics provides observability for the dashboard.
// All methods are safe on a nil receiver.
type Metrics struct {
	UnlockAttempts *prometheus.CounterVec
	LeadsUnlocked  prometheus.Counter
	UnlockLatency  prometheus.Histogram
	SessionLoads   *prometheus.CounterVec
	ReadFailures   *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPLatency    *prometheus.HistogramVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UnlockAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgate_unlock_attempts_total",
			Help: "Unlock attempts by outcome",
		}, []string{"outcome"}),

		LeadsUnlocked: f.NewCounter(prometheus.CounterOpts{
			Name: "leadgate_leads_unlocked_total",
			Help: "Leads submitted in successful unlocks",
		}),

		UnlockLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadgate_unlock_duration_seconds",
			Help:    "Duration of backend unlock calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),

		SessionLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgate_session_loads_total",
			Help: "Dashboard snapshot loads by outcome",
		}, []string{"outcome"}),

		ReadFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgate_backend_read_failures_total",
			Help: "Backend read failures by source",
		}, []string{"source"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgate_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),

		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadgate_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// IncrementUnlock records an unlock attempt outcome.
func (m *Metrics) IncrementUnlock(outcome string) {
	if m != nil {
		m.UnlockAttempts.WithLabelValues(outcome).Inc()
	}
}

// AddUnlocked counts leads granted by a successful unlock.
func (m *Metrics) AddUnlocked(n int) {
	if m != nil {
		m.LeadsUnlocked.Add(float64(n))
	}
}

func (m *Metrics) ObserveUnlockLatency(d time.Duration) {
	if m != nil {
		m.UnlockLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementLoad(outcome string) {
	if m != nil {
		m.SessionLoads.WithLabelValues(outcome).Inc()
	}
}

// IncrementReadFailure records a failed backend read for source.
func (m *Metrics) IncrementReadFailure(source string) {
	if m != nil {
		m.ReadFailures.WithLabelValues(source).Inc()
	}
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(method, route, status).Inc()
		m.HTTPLatency.WithLabelValues(method, route).Observe(d.Seconds())
	}
}
