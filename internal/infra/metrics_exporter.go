package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "crypto_feed"

type counterDesc struct {
	desc  *prometheus.Desc
	value func(MetricsSnapshot) float64
	kind  prometheus.ValueType
}

// metricsCollector exposes Metrics to Prometheus without duplicating the counters.
type metricsCollector struct {
	metrics *Metrics
	descs   []counterDesc
}

func newDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, nil, nil)
}

// NewMetricsCollector wraps m as a prometheus.Collector.
func NewMetricsCollector(m *Metrics) prometheus.Collector {
	return &metricsCollector{
		metrics: m,
		descs: []counterDesc{
			{newDesc("books_received_total", "Book callbacks received"), func(s MetricsSnapshot) float64 { return float64(s.BooksReceived) }, prometheus.CounterValue},
			{newDesc("books_applied_total", "Book updates that changed state"), func(s MetricsSnapshot) float64 { return float64(s.BooksApplied) }, prometheus.CounterValue},
			{newDesc("books_unchanged_total", "Book updates identical to current state"), func(s MetricsSnapshot) float64 { return float64(s.BooksUnchanged) }, prometheus.CounterValue},
			{newDesc("trades_received_total", "Trade callbacks received"), func(s MetricsSnapshot) float64 { return float64(s.TradesReceived) }, prometheus.CounterValue},
			{newDesc("trades_applied_total", "New trades"), func(s MetricsSnapshot) float64 { return float64(s.TradesApplied) }, prometheus.CounterValue},
			{newDesc("trades_duplicate_total", "Trades dropped as duplicates"), func(s MetricsSnapshot) float64 { return float64(s.TradesDuplicate) }, prometheus.CounterValue},
			{newDesc("updates_dropped_total", "Updates dropped for unknown pairs or bad numbers"), func(s MetricsSnapshot) float64 { return float64(s.Dropped) }, prometheus.CounterValue},
			{newDesc("handler_errors_total", "Failed handler calls"), func(s MetricsSnapshot) float64 { return float64(s.HandlerErrors) }, prometheus.CounterValue},
			{newDesc("avg_latency_nanoseconds", "Average event processing latency"), func(s MetricsSnapshot) float64 { return float64(s.AvgLatencyNs) }, prometheus.GaugeValue},
			{newDesc("active_connections", "Open feed connections"), func(s MetricsSnapshot) float64 { return float64(s.ActiveConnections) }, prometheus.GaugeValue},
		},
	}
}

func (c *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d.desc
	}
}

func (c *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()
	for _, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d.desc, d.kind, d.value(snap))
	}
}

// NewMetricsRegistry returns a registry holding the pipeline collector and the Go runtime collectors.
func NewMetricsRegistry(m *Metrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewMetricsCollector(m),
		collectors.NewGoCollector(),
	)
	return reg
}

// MetricsHandler serves the registry in the Prometheus text format.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
