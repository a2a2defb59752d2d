// Package metrics exposes Prometheus collectors for the data-access
// core. All methods are nil-safe so components can run without a
// metrics sink configured.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors shared across components.
type Metrics struct {
	registry *prometheus.Registry

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	rpcRequests *prometheus.CounterVec
	rpcDuration prometheus.Histogram
	batchItems  *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walletflow_cache_hits_total",
			Help: "Tiered cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walletflow_cache_misses_total",
			Help: "Tiered cache misses.",
		}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletflow_rpc_requests_total",
			Help: "Outbound RPC requests by method and outcome.",
		}, []string{"method", "outcome"}),
		rpcDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "walletflow_rpc_duration_seconds",
			Help:    "Outbound RPC request latency.",
			Buckets: prometheus.DefBuckets,
		}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletflow_batch_items_total",
			Help: "Batch items processed by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(m.cacheHits, m.cacheMisses, m.rpcRequests, m.rpcDuration, m.batchItems)
	return m
}

// ObserveCache counts one cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveRPC counts one outbound request and its latency.
func (m *Metrics) ObserveRPC(method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcDuration.Observe(seconds)
}

// ObserveBatchItem counts one completed batch item.
func (m *Metrics) ObserveBatchItem(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.batchItems.WithLabelValues(outcome).Inc()
}

// Handler returns an HTTP handler serving the registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
