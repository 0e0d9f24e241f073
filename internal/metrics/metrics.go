// Package metrics exposes Prometheus instrumentation for the interceptor
// and cache layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request classification labels.
const (
	ClassBackend = "backend"
	ClassApp     = "app"
)

// Fetch outcome labels.
const (
	OutcomeNetwork     = "network"
	OutcomeCache       = "cache"
	OutcomeOfflinePage = "offline_page"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
	OutcomePassthrough = "passthrough"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	FetchTotal      *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	CacheWriteTotal *prometheus.CounterVec
	PrecacheTotal   *prometheus.CounterVec
}

// New registers the gateway collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timezen_gateway_fetch_total",
			Help: "Intercepted fetches by request class and outcome.",
		}, []string{"class", "outcome"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timezen_gateway_fetch_duration_seconds",
			Help:    "Time to satisfy an intercepted fetch.",
			Buckets: prometheus.DefBuckets,
		}, []string{"class"}),
		CacheWriteTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timezen_gateway_cache_write_total",
			Help: "Asynchronous cache writes by cache tier and result.",
		}, []string{"tier", "result"}),
		PrecacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timezen_gateway_precache_total",
			Help: "Install-time precache attempts by result.",
		}, []string{"result"}),
	}
}

// RecordFetch increments the fetch counter for a class/outcome pair.
func (m *Metrics) RecordFetch(class, outcome string) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(class, outcome).Inc()
}

// RecordCacheWrite increments the cache write counter.
func (m *Metrics) RecordCacheWrite(tier, result string) {
	if m == nil {
		return
	}
	m.CacheWriteTotal.WithLabelValues(tier, result).Inc()
}

// ObserveFetchDuration records how long a fetch took.
func (m *Metrics) ObserveFetchDuration(class string, seconds float64) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(class).Observe(seconds)
}

// RecordPrecache increments the precache counter.
func (m *Metrics) RecordPrecache(result string) {
	if m == nil {
		return
	}
	m.PrecacheTotal.WithLabelValues(result).Inc()
}
