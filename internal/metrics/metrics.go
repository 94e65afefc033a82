// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline and detectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sentry"

// Metrics holds the pipeline's instrument set backed by a private
// registry.
type Metrics struct {
	registry *prometheus.Registry

	BatchDuration    *prometheus.HistogramVec
	EntriesParsed    prometheus.Counter
	LinesSkipped     prometheus.Counter
	AnomaliesFound   *prometheus.CounterVec
	ProviderFailures *prometheus.CounterVec
	JobsActive       prometheus.Gauge
	JobsCompleted    *prometheus.CounterVec
}

// New registers the instrument set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batch_duration_seconds",
			Help:      "Time spent analyzing one batch of log entries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"method"}),

		EntriesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "entries_parsed_total",
			Help:      "Log lines successfully normalized.",
		}),

		LinesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "lines_skipped_total",
			Help:      "Log lines dropped as unparseable.",
		}),

		AnomaliesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "anomalies_total",
			Help:      "Anomalies detected, by method and severity.",
		}, []string{"method", "severity"}),

		ProviderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "semantic",
			Name:      "provider_failures_total",
			Help:      "Language-model provider failures, by class.",
		}, []string{"provider", "class"}),

		JobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "jobs_active",
			Help:      "Analysis jobs currently running.",
		}),

		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "jobs_total",
			Help:      "Finished analysis jobs, by terminal status.",
		}, []string{"status"}),
	}

	registry.MustRegister(
		m.BatchDuration,
		m.EntriesParsed,
		m.LinesSkipped,
		m.AnomaliesFound,
		m.ProviderFailures,
		m.JobsActive,
		m.JobsCompleted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the exposition endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
