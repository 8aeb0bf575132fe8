// Package metrics exposes Prometheus counters for resolution runs and the stub backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deferlink"

// Metrics holds the counters. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	outcomes *prometheus.CounterVec
	attempts *prometheus.CounterVec
	requests *prometheus.CounterVec
}

// New creates the counters and registers them on reg (nil skips registration).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Attribution resolution runs by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Link-matching attempts by strategy and result.",
		}, []string{"strategy", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stub",
			Name:      "requests_total",
			Help:      "Stub backend requests by route and status.",
		}, []string{"route", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.outcomes, m.attempts, m.requests)
	}
	return m
}

// ObserveOutcome counts one finished resolution.
func (m *Metrics) ObserveOutcome(reason string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(reason).Inc()
}

// ObserveAttempt counts one transport attempt.
func (m *Metrics) ObserveAttempt(strategy, result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(strategy, result).Inc()
}

// ObserveRequest counts one stub backend request.
func (m *Metrics) ObserveRequest(route, status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, status).Inc()
}
