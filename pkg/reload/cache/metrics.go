package cache

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts classification outcomes. Each engine owns its own Metrics
// so independent instances never share counters.
type Metrics struct {
	hits   atomic.Int64
	misses atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Total returns hits plus misses.
func (s MetricsSnapshot) Total() int64 {
	return s.Hits + s.Misses
}

// Snapshot reads both counters without resetting them.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
	}
}

func (m *Metrics) record(hit bool) {
	if hit {
		m.hits.Add(1)
		return
	}
	m.misses.Add(1)
}

// Collector exports a Cache's metrics to Prometheus.
type Collector struct {
	cache   *Cache
	hits    *prometheus.Desc
	misses  *prometheus.Desc
	entries *prometheus.Desc
}

// NewCollector returns a collector for c. Register it on a per-engine registry.
func NewCollector(c *Cache) *Collector {
	return &Collector{
		cache: c,
		hits: prometheus.NewDesc(
			"hotreload_cache_hits_total",
			"Classifications whose content matched the last observed version",
			nil, nil,
		),
		misses: prometheus.NewDesc(
			"hotreload_cache_misses_total",
			"Classifications whose content differed from the last observed version",
			nil, nil,
		),
		entries: prometheus.NewDesc(
			"hotreload_cache_entries",
			"Identities currently held in the content cache",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.entries
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.cache.Metrics().Snapshot()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(snap.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(snap.Misses))
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(c.cache.Len()))
}
