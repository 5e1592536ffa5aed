package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jamesainslie/hotreload/pkg/reload/watcher"
)

// stateCollector exports the number of watched paths in each state.
type stateCollector struct {
	w    *watcher.Watcher
	desc *prometheus.Desc
}

func newStateCollector(w *watcher.Watcher) *stateCollector {
	return &stateCollector{
		w: w,
		desc: prometheus.NewDesc(
			"hotreload_watched_paths",
			"Watched paths by debounce state",
			[]string{"state"}, nil,
		),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	counts := map[watcher.State]int{
		watcher.StateIdle:     0,
		watcher.StatePending:  0,
		watcher.StateEmitting: 0,
		watcher.StateFailed:   0,
	}
	for _, si := range c.w.States() {
		counts[si.State]++
	}
	for state, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), state.String())
	}
}
