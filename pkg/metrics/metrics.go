// Package metrics groups the Prometheus instruments used by speaky.
//
// All Observe methods are safe to call on a nil *Metrics so components can
// take an optional sink.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions  prometheus.Gauge
	SessionPhases   *prometheus.CounterVec
	RealtimeEvents  *prometheus.CounterVec
	TransportErrors *prometheus.CounterVec
	ToolCalls       *prometheus.CounterVec
	ToolLatency     *prometheus.HistogramVec
	Transactions    *prometheus.CounterVec
	BrokerRequests  *prometheus.CounterVec
}

// New registers every instrument on a fresh registry under namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of realtime sessions with an open channel.",
		}),
		SessionPhases: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_phase_transitions_total",
			Help:      "Session phase transitions by target phase.",
		}, []string{"phase"}),
		RealtimeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Realtime events by direction and type.",
		}, []string{"direction", "type"}),
		TransportErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Transport errors by stage.",
		}, []string{"stage"}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		ToolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_latency_ms",
			Help:      "Tool handler latency in milliseconds.",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 5000, 30000},
		}, []string{"tool"}),
		Transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_transactions_total",
			Help:      "Wallet transactions by status.",
		}, []string{"status"}),
		BrokerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_requests_total",
			Help:      "Credential broker requests by endpoint and status code.",
		}, []string{"endpoint", "code"}),
	}
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveEvent(direction, eventType string) {
	if m == nil {
		return
	}
	m.RealtimeEvents.WithLabelValues(direction, eventType).Inc()
}

// ObservePhase counts a transition and tracks the open-session gauge.
func (m *Metrics) ObservePhase(from, to string) {
	if m == nil {
		return
	}
	m.SessionPhases.WithLabelValues(to).Inc()
	switch {
	case to == "open" && from != "open":
		m.ActiveSessions.Inc()
	case from == "open" && to != "open":
		m.ActiveSessions.Dec()
	}
}

func (m *Metrics) ObserveError(stage string) {
	if m == nil {
		return
	}
	m.TransportErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveTool(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
	m.ToolLatency.WithLabelValues(tool).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTransaction(status string) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveBroker(endpoint string, code int) {
	if m == nil {
		return
	}
	m.BrokerRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}
