package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	// PollTicks counts poll ticks by outcome
	PollTicks *prometheus.CounterVec
	// Classifications counts classification results of the updated candidate
	Classifications *prometheus.CounterVec
	// AttributionWrites counts writes by path (creation|update) and outcome
	AttributionWrites *prometheus.CounterVec
	// TokenRefreshes counts refresh-token exchanges by outcome
	TokenRefreshes *prometheus.CounterVec
	// ActiveLoops is the number of running poll loops
	ActiveLoops prometheus.Gauge
	// HTTPRequestsTotal counts front-door requests
	HTTPRequestsTotal *prometheus.CounterVec
	// RequestLatency tracks front-door latency
	RequestLatency *prometheus.HistogramVec

	registry *prometheus.Registry
}

func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		PollTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_ticks_total",
				Help:      "Total number of poll ticks",
			},
			[]string{"outcome"},
		),
		Classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifications_total",
				Help:      "Classification results for the most recently updated contact",
			},
			[]string{"classification"},
		),
		AttributionWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attribution_writes_total",
				Help:      "Total number of attribution writes",
			},
			[]string{"path", "outcome"},
		),
		TokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Total number of refresh-token exchanges",
			},
			[]string{"outcome"},
		),
		ActiveLoops: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "poll_loops_active",
				Help:      "Number of running poll loops",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"endpoint", "method"},
		),
	}

	registry.MustRegister(
		m.PollTicks,
		m.Classifications,
		m.AttributionWrites,
		m.TokenRefreshes,
		m.ActiveLoops,
		m.HTTPRequestsTotal,
		m.RequestLatency,
	)
	return m
}

// Handler returns a Prometheus handler for these metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordPollTick(outcome string) {
	m.PollTicks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordClassification(classification string) {
	m.Classifications.WithLabelValues(classification).Inc()
}

func (m *Metrics) RecordAttributionWrite(path, outcome string) {
	m.AttributionWrites.WithLabelValues(path, outcome).Inc()
}

func (m *Metrics) RecordTokenRefresh(outcome string) {
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetActiveLoops(n int) {
	m.ActiveLoops.Set(float64(n))
}

func (m *Metrics) RecordHTTPRequest(endpoint, method, status string, durationSeconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	m.RequestLatency.WithLabelValues(endpoint, method).Observe(durationSeconds)
}
