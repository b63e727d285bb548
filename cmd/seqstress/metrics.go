// metrics.go exposes stress run counters to Prometheus.
package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "seqlock_stress"

// Collector is a prometheus.Collector that collects metrics about a
// stress run.
//
// Readers and the prober count locally and flush every flushEvery events
// and once more when they exit. The counters stay live during a soak without
// contending with the lock under test on every read.
type Collector struct {
	reads     prometheus.Counter
	tornReads prometheus.Counter
	writes    prometheus.Counter
	contended prometheus.Counter
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reads_total",
			Help:      "The number of consistent snapshots returned by Read.",
		}),
		tornReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "torn_reads_total",
			Help:      "The number of snapshots that failed validation.",
		}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "writes_total",
			Help:      "The number of committed writes.",
		}),
		contended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "trylock_contended_total",
			Help:      "The number of TryLock calls that found a guard outstanding.",
		}),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.reads.Describe(ch)
	c.tornReads.Describe(ch)
	c.writes.Describe(ch)
	c.contended.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.reads.Collect(ch)
	c.tornReads.Collect(ch)
	c.writes.Collect(ch)
	c.contended.Collect(ch)
}
