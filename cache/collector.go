package cache

import "github.com/prometheus/client_golang/prometheus"

// Collector exports Stats as Prometheus metrics
type Collector struct {
	source StatsReporter

	hits        *prometheus.Desc
	misses      *prometheus.Desc
	loads       *prometheus.Desc
	loadErrors  *prometheus.Desc
	shared      *prometheus.Desc
	refreshes   *prometheus.Desc
	invalidated *prometheus.Desc
	inFlight    *prometheus.Desc
	size        *prometheus.Desc
}

// NewCollector creates a collector reading from source. name is added as a
// constant "cache" label so several caches can be registered.
func NewCollector(name string, source StatsReporter) *Collector {
	labels := prometheus.Labels{"cache": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc("airwave_cache_"+metric, help, nil, labels)
	}
	return &Collector{
		source:      source,
		hits:        desc("hits_total", "Reads served from the cache."),
		misses:      desc("misses_total", "Reads that found no valid entry."),
		loads:       desc("loads_total", "Loader invocations."),
		loadErrors:  desc("load_errors_total", "Loader invocations that failed."),
		shared:      desc("shared_total", "Callers that received a deduplicated load result."),
		refreshes:   desc("background_refreshes_total", "Background refreshes started."),
		invalidated: desc("invalidated_total", "Entries removed by pattern invalidation."),
		inFlight:    desc("in_flight", "Loads currently running."),
		size:        desc("entries", "Entries currently stored."),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.hits, c.misses, c.loads, c.loadErrors, c.shared, c.refreshes, c.invalidated, c.inFlight, c.size} {
		ch <- d
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.Misses))
	ch <- prometheus.MustNewConstMetric(c.loads, prometheus.CounterValue, float64(st.Loads))
	ch <- prometheus.MustNewConstMetric(c.loadErrors, prometheus.CounterValue, float64(st.LoadErrors))
	ch <- prometheus.MustNewConstMetric(c.shared, prometheus.CounterValue, float64(st.Shared))
	ch <- prometheus.MustNewConstMetric(c.refreshes, prometheus.CounterValue, float64(st.Refreshes))
	ch <- prometheus.MustNewConstMetric(c.invalidated, prometheus.CounterValue, float64(st.Invalidated))
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(st.InFlight))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(st.Size))
}

var _ prometheus.Collector = (*Collector)(nil)
