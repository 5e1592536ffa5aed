package events

import "github.com/prometheus/client_golang/prometheus"

// Collector exports broadcaster counters to Prometheus.
type Collector struct {
	b         *Broadcaster
	published *prometheus.Desc
	subs      *prometheus.Desc
	backlog   *prometheus.Desc
}

// NewCollector returns a collector for b.
func NewCollector(b *Broadcaster) *Collector {
	return &Collector{
		b: b,
		published: prometheus.NewDesc(
			"hotreload_events_published_total",
			"File events published, by kind",
			[]string{"kind"}, nil,
		),
		subs: prometheus.NewDesc(
			"hotreload_subscriptions",
			"Active event subscriptions",
			nil, nil,
		),
		backlog: prometheus.NewDesc(
			"hotreload_events_backlog",
			"Events queued but not yet consumed, summed over subscriptions",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.published
	ch <- c.subs
	ch <- c.backlog
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.b.Stats()
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(s.Changed), KindChanged.String())
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(s.Removed), KindRemoved.String())
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(s.WatchErrors), KindWatchError.String())
	ch <- prometheus.MustNewConstMetric(c.subs, prometheus.GaugeValue, float64(s.Subscribers))
	ch <- prometheus.MustNewConstMetric(c.backlog, prometheus.GaugeValue, float64(s.Backlog))
}
