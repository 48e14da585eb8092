// Package metrics exposes Prometheus instruments for the account engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marginbook"

// Metrics engine instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	events           *prometheus.CounterVec
	droppedEvents    *prometheus.CounterVec
	orderTransitions *prometheus.CounterVec
	scopeFailures    *prometheus.CounterVec
	reconnects       *prometheus.CounterVec
	seedDuration     prometheus.Histogram
	subscribed       prometheus.Gauge
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "events_total",
				Help:      "User data events dispatched, by account scope and event type",
			},
			[]string{"scope", "type"},
		),
		droppedEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "dropped_events_total",
				Help:      "Events dropped before reaching the store",
			},
			[]string{"scope", "reason"},
		),
		orderTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "orders",
				Name:      "transitions_total",
				Help:      "Order transitions applied to the store, by resulting status",
			},
			[]string{"scope", "status"},
		),
		scopeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "scope_failures_total",
				Help:      "Fatal account errors that shut down a socket",
			},
			[]string{"scope"},
		),
		reconnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "reconnects_total",
				Help:      "Socket reconnects requested by stream error events",
			},
			[]string{"scope"},
		),
		seedDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "seed",
				Name:      "duration_seconds",
				Help:      "Time spent seeding account state over REST",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		subscribed: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "isolated",
				Name:      "subscribed_symbols",
				Help:      "Isolated margin symbols with a live socket",
			},
		),
	}
}

func (m *Metrics) EventDispatched(scope, eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(scope, eventType).Inc()
}

func (m *Metrics) EventDropped(scope, reason string) {
	if m == nil {
		return
	}
	m.droppedEvents.WithLabelValues(scope, reason).Inc()
}

func (m *Metrics) OrderTransition(scope, status string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(scope, status).Inc()
}

func (m *Metrics) ScopeFailed(scope string) {
	if m == nil {
		return
	}
	m.scopeFailures.WithLabelValues(scope).Inc()
}

func (m *Metrics) Reconnected(scope string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(scope).Inc()
}

func (m *Metrics) SeedFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.seedDuration.Observe(d.Seconds())
}

func (m *Metrics) SetSubscribed(n int) {
	if m == nil {
		return
	}
	m.subscribed.Set(float64(n))
}
