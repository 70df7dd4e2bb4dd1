// Package observability exports tagpool.Stats to Prometheus.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	tagpool "github.com/kodecache/tagpool"
)

// PrometheusCollector exports pool-level operation counters to Prometheus.
type PrometheusCollector struct {
	pool        tagpool.Observable
	poolName    string
	hits        *prometheus.Desc
	misses      *prometheus.Desc
	saves       *prometheus.Desc
	deletes     *prometheus.Desc
	invalidates *prometheus.Desc
	errors      *prometheus.Desc
}

// NewPrometheusCollector creates a new PrometheusCollector for pool, labeled
// with poolName (e.g. a namespace) to tell multiple registered pools apart
// under one registry.
func NewPrometheusCollector(pool tagpool.Observable, namespace, subsystem, poolName string) *PrometheusCollector {
	labels := []string{"pool"}

	return &PrometheusCollector{
		pool:     pool,
		poolName: poolName,
		hits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "hits_total"),
			"Total number of item fetches served from the backend",
			labels, nil,
		),
		misses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "misses_total"),
			"Total number of item fetches with no value",
			labels, nil,
		),
		saves: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "saves_total"),
			"Total number of items committed to the backend",
			labels, nil,
		),
		deletes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "deletes_total"),
			"Total number of items deleted",
			labels, nil,
		),
		invalidates: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "invalidates_total"),
			"Total number of tag invalidations",
			labels, nil,
		),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "errors_total"),
			"Total number of backend-fatal errors observed",
			labels, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.saves
	ch <- c.deletes
	ch <- c.invalidates
	ch <- c.errors
}

// Collect implements prometheus.Collector.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.pool.Stats()
	labelValues := []string{c.poolName}

	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits), labelValues...)
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses), labelValues...)
	ch <- prometheus.MustNewConstMetric(c.saves, prometheus.CounterValue, float64(stats.Saves), labelValues...)
	ch <- prometheus.MustNewConstMetric(c.deletes, prometheus.CounterValue, float64(stats.Deletes), labelValues...)
	ch <- prometheus.MustNewConstMetric(c.invalidates, prometheus.CounterValue, float64(stats.Invalidates), labelValues...)
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(stats.Errors), labelValues...)
}
