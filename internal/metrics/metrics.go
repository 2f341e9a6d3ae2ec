// Package metrics holds the prometheus collectors of conversion runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	eventsImported *prometheus.CounterVec
	eventsRejected *prometheus.CounterVec
	warnings       prometheus.Counter
	events         prometheus.Gauge
	lastSuccess    prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocsched_runs_total",
				Help: "Conversion runs by status",
			},
			[]string{"status"},
		),
		runDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vocsched_run_duration_seconds",
				Help:    "Duration of conversion runs",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		eventsImported: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocsched_events_imported_total",
				Help: "Events imported from calendar sources",
			},
			[]string{"source"},
		),
		eventsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocsched_events_rejected_total",
				Help: "Imported events outside every day window",
			},
			[]string{"source"},
		),
		warnings: f.NewCounter(
			prometheus.CounterOpts{
				Name: "vocsched_transcoder_warnings_total",
				Help: "Fields dropped from the XML export",
			},
		),
		events: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "vocsched_schedule_events",
				Help: "Events in the last published schedule",
			},
		),
		lastSuccess: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "vocsched_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
		),
	}
	// export both run series from the first scrape on
	m.runs.WithLabelValues("ok")
	m.runs.WithLabelValues("error")
	return m
}

// Run records one finished run.
func (m *Metrics) Run(err error, took time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(took.Seconds())
	if err != nil {
		m.runs.WithLabelValues("error").Inc()
		return
	}
	m.runs.WithLabelValues("ok").Inc()
	m.lastSuccess.SetToCurrentTime()
}

func (m *Metrics) Imported(source string, n int) {
	if m == nil {
		return
	}
	m.eventsImported.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) Rejected(source string, n int) {
	if m == nil {
		return
	}
	m.eventsRejected.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) Published(events, warnings int) {
	if m == nil {
		return
	}
	m.events.Set(float64(events))
	m.warnings.Add(float64(warnings))
}

// Registry exposes the registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
