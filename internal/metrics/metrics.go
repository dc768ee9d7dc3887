// Package metrics exposes the gateway's Prometheus collectors. Metrics are
// process-lifetime only; nothing is persisted across restarts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portico_requests_total",
			Help: "Completion requests dispatched, by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portico_request_duration_seconds",
			Help:    "End-to-end forwarded request duration",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"endpoint"},
	)

	probeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portico_probe_latency_seconds",
			Help:    "Synthetic probe latency, by endpoint and strategy",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"endpoint", "strategy"},
	)

	probeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portico_probe_failures_total",
			Help: "Failed synthetic probes, by endpoint and strategy",
		},
		[]string{"endpoint", "strategy"},
	)

	endpointHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "portico_endpoint_healthy",
			Help: "1 when the endpoint is in rotation, 0 when banned or unhealthy",
		},
		[]string{"endpoint"},
	)
)

// IncRequest counts one dispatched request.
func IncRequest(endpoint, outcome string) {
	requestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveRequestDuration records one forwarded request's duration.
func ObserveRequestDuration(endpoint string, seconds float64) {
	requestDuration.WithLabelValues(endpoint).Observe(seconds)
}

// ObserveProbe records one probe outcome.
func ObserveProbe(endpoint, strategy string, latencySeconds float64, success bool) {
	if success {
		probeLatency.WithLabelValues(endpoint, strategy).Observe(latencySeconds)
	} else {
		probeFailures.WithLabelValues(endpoint, strategy).Inc()
	}
}

// SetEndpointHealthy publishes an endpoint's rotation state.
func SetEndpointHealthy(endpoint string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	endpointHealthy.WithLabelValues(endpoint).Set(v)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
