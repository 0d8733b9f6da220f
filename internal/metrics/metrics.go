// Package metrics exposes pipeline counters in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taxitrend"

// Metrics holds the pipeline collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	files         *prometheus.CounterVec
	tripsKept     prometheus.Counter
	summaries     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	running       prometheus.Gauge
}

// New creates and registers the pipeline collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Period downloads by result (ok, failed).",
		}, []string{"result"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_files_total",
			Help:      "Raw files seen by the cleaner by outcome (cleaned, skipped).",
		}, []string{"outcome"}),
		tripsKept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trips_kept_total",
			Help:      "Trips written to pruned files.",
		}),
		summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Aggregation runs by analysis type and outcome (recomputed, fresh).",
		}, []string{"type", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stages that ended with an error.",
		}, []string{"stage"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a triggered run is in progress.",
		}),
	}
	m.registry.MustRegister(
		m.fetches,
		m.files,
		m.tripsKept,
		m.summaries,
		m.stageDuration,
		m.stageFailures,
		m.running,
	)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records the duration and outcome of a stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

// ObserveFetches records the period downloads of one gap fill.
func (m *Metrics) ObserveFetches(ok, failed int) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues("ok").Add(float64(ok))
	m.fetches.WithLabelValues("failed").Add(float64(failed))
}

// ObserveFile records one raw file handled by the cleaner.
func (m *Metrics) ObserveFile(skipped bool, kept int) {
	if m == nil {
		return
	}
	if skipped {
		m.files.WithLabelValues("skipped").Inc()
		return
	}
	m.files.WithLabelValues("cleaned").Inc()
	m.tripsKept.Add(float64(kept))
}

// ObserveSummary records one aggregation run.
func (m *Metrics) ObserveSummary(analysisType string, recomputed bool) {
	if m == nil {
		return
	}
	outcome := "fresh"
	if recomputed {
		outcome = "recomputed"
	}
	m.summaries.WithLabelValues(analysisType, outcome).Inc()
}

// SetRunning updates the run-in-progress gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
}
