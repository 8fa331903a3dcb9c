// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SessionsStartedTotal prometheus.Counter
	StepEventsTotal      *prometheus.CounterVec
	SessionsExitedTotal  *prometheus.CounterVec
	RecorderWriteErrors  *prometheus.CounterVec
	ActiveSessions       prometheus.Gauge
	SummaryCacheHits     prometheus.Counter
	SummaryCacheMisses   prometheus.Counter
	ExportsTotal         *prometheus.CounterVec
	MirrorRowsTotal      *prometheus.CounterVec
	MirrorFailuresTotal  prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SessionsStartedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "funnel_sessions_started_total",
				Help: "Total funnel sessions started.",
			},
		),
		StepEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_step_events_total",
				Help: "Total step events recorded by action (enter, answer, exit).",
			},
			[]string{"action"},
		),
		SessionsExitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_sessions_exited_total",
				Help: "Total sessions exited by reason (completed, abandoned, ineligible).",
			},
			[]string{"reason"},
		),
		RecorderWriteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recorder_write_errors_total",
				Help: "Recorder store/publish failures by target (postgres, kafka). Suppressed, never surfaced.",
			},
			[]string{"target"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "funnel_active_sessions",
				Help: "Sessions currently tracked by the recorder (not yet exited or evicted).",
			},
		),
		SummaryCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "summary_cache_hits_total",
				Help: "Total aggregate-cache hits.",
			},
		),
		SummaryCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "summary_cache_misses_total",
				Help: "Total aggregate-cache misses.",
			},
		),
		ExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csv_exports_total",
				Help: "Total CSV exports by kind (sessions, steps).",
			},
			[]string{"kind"},
		),
		MirrorRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_rows_appended_total",
				Help: "Rows appended to the spreadsheet mirror by tab.",
			},
			[]string{"tab"},
		),
		MirrorFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mirror_append_failures_total",
				Help: "Spreadsheet append batches dropped after retry exhaustion.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SessionsStartedTotal,
		m.StepEventsTotal,
		m.SessionsExitedTotal,
		m.RecorderWriteErrors,
		m.ActiveSessions,
		m.SummaryCacheHits,
		m.SummaryCacheMisses,
		m.ExportsTotal,
		m.MirrorRowsTotal,
		m.MirrorFailuresTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
