package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics contains Prometheus metrics for the result cache.
type CacheMetrics struct {
	CacheSize    prometheus.Gauge
	CacheEntries prometheus.Gauge
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	Evictions    *prometheus.CounterVec
	registry     *prometheus.Registry
}

// NewCacheMetrics creates and registers the cache metrics.
func NewCacheMetrics(registry *prometheus.Registry) (*CacheMetrics, error) {
	m := &CacheMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register cache metrics: %w", err)
	}
	return m, nil
}

func (m *CacheMetrics) initMetrics() {
	m.CacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "imagelens_cache_size_bytes",
		Help: "Total size of serialized results in the cache.",
	})
	m.CacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "imagelens_cache_entries",
		Help: "Number of cached results.",
	})
	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imagelens_cache_hits_total",
		Help: "Total number of cache hits.",
	})
	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imagelens_cache_misses_total",
		Help: "Total number of cache misses.",
	})
	m.Evictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imagelens_cache_evictions_total",
		Help: "Entries removed by pruning, by reason.",
	}, []string{"reason"})
}

// CacheHit increases the hit counter by one.
func (m *CacheMetrics) CacheHit() { m.CacheHits.Inc() }

// CacheMiss increases the miss counter by one.
func (m *CacheMetrics) CacheMiss() { m.CacheMisses.Inc() }

// CacheEvicted adds n pruned entries under reason (age or count).
func (m *CacheMetrics) CacheEvicted(reason string, n int) {
	m.Evictions.WithLabelValues(reason).Add(float64(n))
}

// SetCacheStats updates the size gauges.
func (m *CacheMetrics) SetCacheStats(entries, sizeBytes int64) {
	m.CacheEntries.Set(float64(entries))
	m.CacheSize.Set(float64(sizeBytes))
}

// Collect implements the prometheus.Collector interface.
func (m *CacheMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.CacheSize
	ch <- m.CacheEntries
	ch <- m.CacheHits
	ch <- m.CacheMisses
	m.Evictions.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *CacheMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.CacheSize.Desc()
	ch <- m.CacheEntries.Desc()
	ch <- m.CacheHits.Desc()
	ch <- m.CacheMisses.Desc()
	m.Evictions.Describe(ch)
}
