package main

import (
	"github.com/prometheus/client_golang/prometheus"

	authgate "github.com/masabinhok/authgate"
)

// gateCollector exposes the gate's atomic counters to Prometheus without
// touching the library's hot paths.
type gateCollector struct {
	metrics *authgate.Metrics
	desc    *prometheus.Desc
}

func newGateCollector(m *authgate.Metrics) *gateCollector {
	return &gateCollector{
		metrics: m,
		desc: prometheus.NewDesc(
			"authgate_events_total",
			"Session lifecycle event counters.",
			[]string{"event"},
			nil,
		),
	}
}

func (c *gateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *gateCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()
	for id, value := range snap.Counters {
		ch <- prometheus.MustNewConstMetric(
			c.desc,
			prometheus.CounterValue,
			float64(value),
			id.Name(),
		)
	}
}
