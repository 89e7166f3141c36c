package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sizer reports the number of entries held by an in-memory store
type Sizer interface {
	Len() int
}

// InfluenceSource exposes current expert influence weights
type InfluenceSource interface {
	Influence() map[string]float64
}

// StateCollector exports gauges read from live components at scrape time
type StateCollector struct {
	cache     Sizer
	profiles  Sizer
	influence InfluenceSource

	cacheEntries    *prometheus.Desc
	trackedProfiles *prometheus.Desc
	expertInfluence *prometheus.Desc
}

// NewStateCollector creates a collector. Nil sources are skipped.
func NewStateCollector(cache, profiles Sizer, influence InfluenceSource) *StateCollector {
	return &StateCollector{
		cache:     cache,
		profiles:  profiles,
		influence: influence,

		cacheEntries: prometheus.NewDesc(
			"newsdesk_cache_entries",
			"Reserve entries currently cached",
			nil, nil,
		),
		trackedProfiles: prometheus.NewDesc(
			"newsdesk_tracked_profiles",
			"User profiles held in memory",
			nil, nil,
		),
		expertInfluence: prometheus.NewDesc(
			"newsdesk_expert_influence",
			"Current influence weight of each council expert",
			[]string{"expert"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cacheEntries
	ch <- c.trackedProfiles
	ch <- c.expertInfluence
}

// Collect implements prometheus.Collector
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	if c.cache != nil {
		ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, float64(c.cache.Len()))
	}
	if c.profiles != nil {
		ch <- prometheus.MustNewConstMetric(c.trackedProfiles, prometheus.GaugeValue, float64(c.profiles.Len()))
	}
	if c.influence != nil {
		for expert, w := range c.influence.Influence() {
			ch <- prometheus.MustNewConstMetric(c.expertInfluence, prometheus.GaugeValue, w, expert)
		}
	}
}

// RegisterStateCollector registers the collector, with the default
// registry when reg is nil
func RegisterStateCollector(reg prometheus.Registerer, collector *StateCollector) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return reg.Register(collector)
}
