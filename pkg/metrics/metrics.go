// Package metrics defines the Prometheus collectors used by bindertrack and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for ResolutionsTotal.
const (
	OutcomeFound       = "found"
	OutcomeEmpty       = "empty"
	OutcomeUnavailable = "unavailable"
	OutcomeTruncated   = "truncated"
	OutcomeFault       = "fault"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ResolutionsTotal     *prometheus.CounterVec
	ResolutionLatency    prometheus.Histogram
	ResolutionSize       prometheus.Histogram
	PairsParsedTotal     prometheus.Counter
	MalformedLinesTotal  prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	ReportsSavedTotal    *prometheus.CounterVec
	StoreBreakerState    prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg uses
// the global default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
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
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binder_resolutions_total",
				Help: "Binder relationship resolutions by outcome (found, empty, unavailable, truncated, fault).",
			},
			[]string{"outcome"},
		),
		ResolutionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "binder_resolution_duration_seconds",
				Help:    "Time to read, group and walk one snapshot.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		ResolutionSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "binder_resolution_pids",
				Help:    "Number of pids in a resolved binder communication set.",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
			},
		),
		PairsParsedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "binder_pairs_parsed_total",
				Help: "Total transaction pairs extracted from snapshots.",
			},
		),
		MalformedLinesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "binder_malformed_lines_total",
				Help: "Total candidate lines skipped because their layout did not match.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "binder_cache_hits_total",
				Help: "Total number of resolution cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "binder_cache_misses_total",
				Help: "Total number of resolution cache misses.",
			},
		),
		ReportsSavedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binder_reports_saved_total",
				Help: "Resolution reports written to the store by status.",
			},
			[]string{"status"},
		),
		StoreBreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "binder_store_breaker_state",
				Help: "Report store circuit breaker state (0 closed, 1 open, 2 half-open).",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ResolutionsTotal,
		m.ResolutionLatency,
		m.ResolutionSize,
		m.PairsParsedTotal,
		m.MalformedLinesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ReportsSavedTotal,
		m.StoreBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
