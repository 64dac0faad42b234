// Package metrics exposes Prometheus counters and histograms for cache
// behavior and dispatcher throughput.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles all collectors this process registers.
type Metrics struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	DispatchTotal  *prometheus.CounterVec
	DispatchErrors *prometheus.CounterVec
	DispatchTime   *prometheus.HistogramVec
}

// New constructs and registers Metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eleel",
			Name:      "cache_hits_total",
			Help:      "Number of cache hits, by cache name.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eleel",
			Name:      "cache_misses_total",
			Help:      "Number of cache misses, by cache name.",
		}, []string{"cache"}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eleel",
			Name:      "rpc_dispatch_total",
			Help:      "Number of dispatched JSON-RPC calls, by method and endpoint.",
		}, []string{"method", "endpoint"}),
		DispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eleel",
			Name:      "rpc_dispatch_errors_total",
			Help:      "Number of JSON-RPC calls that returned an error, by method and endpoint.",
		}, []string{"method", "endpoint"}),
		DispatchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eleel",
			Name:      "rpc_dispatch_duration_seconds",
			Help:      "Dispatch latency in seconds, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(m.CacheHits, m.CacheMisses, m.DispatchTotal, m.DispatchErrors, m.DispatchTime)
	return m
}
