// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics groups the counters the services update. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	borrows        *prometheus.CounterVec
	returns        *prometheus.CounterVec
	authFailures   *prometheus.CounterVec
	sessionsIssued prometheus.Counter
	sessionRevokes prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry together
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		borrows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "librarian",
			Name:      "borrows_total",
			Help:      "Borrow attempts by outcome.",
		}, []string{"outcome"}),
		returns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "librarian",
			Name:      "returns_total",
			Help:      "Return attempts by outcome.",
		}, []string{"outcome"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "librarian",
			Name:      "auth_failures_total",
			Help:      "Rejected authentications by reason.",
		}, []string{"reason"}),
		sessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "librarian",
			Name:      "sessions_issued_total",
			Help:      "Session tokens issued.",
		}),
		sessionRevokes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "librarian",
			Name:      "sessions_revoked_total",
			Help:      "Session tokens revoked.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.borrows,
		m.returns,
		m.authFailures,
		m.sessionsIssued,
		m.sessionRevokes,
	)
	return m
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Borrow(outcome string) {
	if m == nil {
		return
	}
	m.borrows.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Return(outcome string) {
	if m == nil {
		return
	}
	m.returns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) SessionIssued() {
	if m == nil {
		return
	}
	m.sessionsIssued.Inc()
}

func (m *Metrics) SessionRevoked() {
	if m == nil {
		return
	}
	m.sessionRevokes.Inc()
}
