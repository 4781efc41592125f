// Package metrics exposes the sink's operational counters/histograms on
// a private prometheus.Registry (SPEC_FULL §6 NEW operator surface),
// re-scoped from the teacher's HTTP-service metrics (DB/cache/session)
// to the sink's own concerns: endpoint attempts, retries, publisher
// outcomes, and credential refreshes.
package metrics

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the full set of collectors, all registered on a private
// registry so this package never pollutes the default global one.
type Metrics struct {
	registry *prometheus.Registry

	EndpointRequests      *prometheus.CounterVec
	EndpointRequestLatency *prometheus.HistogramVec
	RetryAttempts         *prometheus.CounterVec
	PublisherOutcomes     *prometheus.CounterVec
	DeadLetterWrites      *prometheus.CounterVec
	CredentialRefreshes   *prometheus.CounterVec
	RecordsInFlight       prometheus.Gauge
}

// New builds and registers every collector under namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		EndpointRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoint_requests_total",
			Help:      "Total HTTP requests issued to the configured endpoint, by outcome.",
		}, []string{"outcome"}),
		EndpointRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "endpoint_request_duration_seconds",
			Help:      "Endpoint round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Total retry attempts, by final outcome of the attempt.",
		}, []string{"outcome"}),
		PublisherOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publisher_outcomes_total",
			Help:      "Total publish attempts to response/error topics, by topic kind and outcome.",
		}, []string{"kind", "outcome"}),
		DeadLetterWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letter_writes_total",
			Help:      "Total dead-letter sink writes, by outcome.",
		}, []string{"outcome"}),
		CredentialRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_refreshes_total",
			Help:      "Total OAuth2 token refreshes, by outcome.",
		}, []string{"outcome"}),
		RecordsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_in_flight",
			Help:      "Records currently being processed by the pipeline.",
		}),
	}

	registry.MustRegister(
		m.EndpointRequests,
		m.EndpointRequestLatency,
		m.RetryAttempts,
		m.PublisherOutcomes,
		m.DeadLetterWrites,
		m.CredentialRefreshes,
		m.RecordsInFlight,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware matches the teacher's gin middleware shape. It is a
// pass-through: it records no metrics.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
	}
}
