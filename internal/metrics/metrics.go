// Package metrics exposes relay, broadcast and HTTP counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lessonchat"

// Event outcomes
const (
	OutcomeOK         = "ok"
	OutcomeInvalid    = "invalid"
	OutcomeNotFound   = "not_found"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
	OutcomeOverloaded = "overloaded"
)

// Metrics owns a private registry so several instances can coexist in tests.
// All methods are safe on a nil *Metrics.
type Metrics struct {
	registry   *prometheus.Registry
	events     *prometheus.CounterVec
	broadcasts *prometheus.CounterVec
	requests   *prometheus.CounterVec
}

// New creates the collectors, including Go runtime and process metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Session events handled, by event name and outcome.",
		}, []string{"event", "outcome"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Per-connection broadcast hand-offs, by event name and result.",
		}, []string{"event", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method and status code.",
		}, []string{"method", "code"}),
	}

	m.registry.MustRegister(
		m.events,
		m.broadcasts,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveEvent counts one handled event
func (m *Metrics) ObserveEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event, outcome).Inc()
}

// ObserveBroadcast counts the result of one room broadcast
func (m *Metrics) ObserveBroadcast(event string, delivered, failed int) {
	if m == nil {
		return
	}
	if delivered > 0 {
		m.broadcasts.WithLabelValues(event, "delivered").Add(float64(delivered))
	}
	if failed > 0 {
		m.broadcasts.WithLabelValues(event, "failed").Add(float64(failed))
	}
}

// ObserveRequest counts one HTTP response
func (m *Metrics) ObserveRequest(method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// RegisterGauge exposes a value sampled at scrape time
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
