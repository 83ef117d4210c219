// Package metrics provides the Prometheus collectors that instrument the
// diagnostics spec.md calls out explicitly — WorkingBuffers' high-water
// mark (§4.2) and SectorAllocator's exhaustion failures (§4.1) — plus a
// counter for B+ tree node splits (§4.9), following the teacher pack's
// buildbarn-bb-storage convention of a Collectors struct registered by
// the caller rather than a built-in HTTP endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles the gauges/counters Phylum updates. A nil
// *Collectors disables metrics, so callers that don't care about metrics
// never have to construct one; a non-nil value has every field called,
// so a zero-value struct (nil collectors) is not usable.
type Collectors struct {
	BuffersInUse    prometheus.Gauge
	BuffersHighWater prometheus.Gauge
	AllocatorCalls  prometheus.Counter
	AllocatorExhausted prometheus.Counter
	TreeSplits      prometheus.Counter
}

// NewCollectors builds a Collectors with the standard Phylum metric
// names/namespace, ready to be registered against a prometheus.Registerer.
func NewCollectors(namespace string) *Collectors {
	return &Collectors{
		BuffersInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "working_buffers",
			Name:      "in_use",
			Help:      "Number of working buffers currently checked out.",
		}),
		BuffersHighWater: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "working_buffers",
			Name:      "high_water_mark",
			Help:      "Highest number of working buffers ever checked out simultaneously.",
		}),
		AllocatorCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sector_allocator",
			Name:      "allocate_total",
			Help:      "Total calls to SectorAllocator.Allocate.",
		}),
		AllocatorExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sector_allocator",
			Name:      "exhausted_total",
			Help:      "Total SectorAllocator.Allocate calls that failed with Exhausted.",
		}),
		TreeSplits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "node_splits_total",
			Help:      "Total B+ tree node splits across all trees.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collectors) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.all() {
		m.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collectors) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.all() {
		m.Collect(ch)
	}
}

func (c *Collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.BuffersInUse,
		c.BuffersHighWater,
		c.AllocatorCalls,
		c.AllocatorExhausted,
		c.TreeSplits,
	}
}
