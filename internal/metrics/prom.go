package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wesleyorama2/lbbench/internal/bench"
)

// Exporter holds the Prometheus metrics of one benchmark run.
//
// Every run gets its own registry so that the textfile only contains the
// metrics of that run.
type Exporter struct {
	RequestCounter   *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec
	ErrorRate        *prometheus.GaugeVec
	Throughput       *prometheus.GaugeVec
	LatencyQuantile  *prometheus.GaugeVec
	RunInfo          *prometheus.GaugeVec
	registry         *prometheus.Registry
}

// NewExporter creates and registers all metrics.
func NewExporter(runID string) *Exporter {
	registry := prometheus.NewRegistry()

	e := &Exporter{
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lbbench_requests_total",
				Help: "Total number of benchmark requests by outcome",
			},
			[]string{"target", "status"},
		),
		LatencyHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lbbench_request_duration_seconds",
				Help:    "Latency of successful benchmark requests in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"target"},
		),
		ErrorRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lbbench_error_ratio",
				Help: "Fraction of failed requests per target",
			},
			[]string{"target"},
		),
		Throughput: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lbbench_throughput_requests_per_second",
				Help: "Completed requests per second over the ramp",
			},
			[]string{"target"},
		),
		LatencyQuantile: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lbbench_latency_seconds",
				Help: "Exact nearest-rank latency percentiles of successful requests",
			},
			[]string{"target", "quantile"},
		),
		RunInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lbbench_run_info",
				Help: "Benchmark run metadata",
			},
			[]string{"run_id"},
		),
		registry: registry,
	}

	registry.MustRegister(e.RequestCounter)
	registry.MustRegister(e.LatencyHistogram)
	registry.MustRegister(e.ErrorRate)
	registry.MustRegister(e.Throughput)
	registry.MustRegister(e.LatencyQuantile)
	registry.MustRegister(e.RunInfo)

	e.RunInfo.WithLabelValues(runID).Set(1)
	return e
}

// Observe counts an outcome and records its latency when it succeeded.
func (e *Exporter) Observe(o bench.Outcome) {
	e.RequestCounter.WithLabelValues(o.Target, o.Label()).Inc()
	if o.OK() {
		e.LatencyHistogram.WithLabelValues(o.Target).Observe(o.Latency.Seconds())
	}
}

// RecordSummary sets the summary gauges of a target. Undefined percentiles
// are left unset.
func (e *Exporter) RecordSummary(s TargetSummary) {
	e.ErrorRate.WithLabelValues(s.Target).Set(s.ErrorRate)
	e.Throughput.WithLabelValues(s.Target).Set(s.ThroughputRPS)

	quantiles := []struct {
		label string
		value *time.Duration
	}{
		{"0.5", s.LatencyP50},
		{"0.95", s.LatencyP95},
		{"0.99", s.LatencyP99},
	}
	for _, q := range quantiles {
		if q.value != nil {
			e.LatencyQuantile.WithLabelValues(s.Target, q.label).Set(q.value.Seconds())
		}
	}
}

// Registry returns the run's registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// WriteTextfile writes the metrics in the text exposition format, atomically
// replacing path. The output is suitable for the node exporter textfile
// collector.
func (e *Exporter) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, e.registry)
}
