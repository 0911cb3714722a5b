// Package metrics holds the Prometheus instruments of the composite engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache names used as label values
const (
	CacheAlignment  = "alignment"
	CacheExpression = "expression"
	CacheChart      = "chart"
)

// Metrics holds all Prometheus metrics for the composite engine.
type Metrics struct {
	EvaluationsTotal   *prometheus.CounterVec // labels: outcome=success|failure
	EvaluationDuration prometheus.Histogram
	PointErrorsTotal   prometheus.Counter
	CacheHitsTotal     *prometheus.CounterVec // labels: cache
	CacheMissesTotal   *prometheus.CounterVec // labels: cache
	SymbolFetchErrors  prometheus.Counter
	AlignedPoints      prometheus.Histogram
	ChartsActive       prometheus.Gauge
	RefreshRunsTotal   prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics creates the metrics and registers them with reg.
// A nil reg uses a fresh private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "composite_evaluations_total",
			Help: "Expression evaluations by outcome",
		}, []string{"outcome"}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "composite_evaluation_duration_seconds",
			Help:    "Time spent evaluating an expression (cache misses only)",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		PointErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "composite_point_errors_total",
			Help: "Per-timestamp evaluation failures recorded as NaN",
		}),
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "composite_cache_hits_total",
			Help: "Cache hits by cache",
		}, []string{"cache"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "composite_cache_misses_total",
			Help: "Cache misses by cache",
		}, []string{"cache"}),
		SymbolFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "composite_symbol_fetch_errors_total",
			Help: "Symbol history fetches that failed and were dropped from alignment",
		}),
		AlignedPoints: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "composite_aligned_points",
			Help:    "Rows produced per alignment",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		ChartsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "composite_charts",
			Help: "Composite charts currently defined",
		}),
		RefreshRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "composite_refresh_runs_total",
			Help: "Scheduled data refresh runs",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.EvaluationDuration,
		m.PointErrorsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SymbolFetchErrors,
		m.AlignedPoints,
		m.ChartsActive,
		m.RefreshRunsTotal,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// CacheHit records a hit on the named cache
func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// CacheMiss records a miss on the named cache
func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// ObserveEvaluation records one computed evaluation
func (m *Metrics) ObserveEvaluation(success bool, d time.Duration, pointErrors int) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.EvaluationsTotal.WithLabelValues(outcome).Inc()
	m.EvaluationDuration.Observe(d.Seconds())
	if pointErrors > 0 {
		m.PointErrorsTotal.Add(float64(pointErrors))
	}
}

// SymbolFetchFailed records a dropped symbol
func (m *Metrics) SymbolFetchFailed() {
	if m == nil {
		return
	}
	m.SymbolFetchErrors.Inc()
}

// ObserveAlignment records the size of an alignment result
func (m *Metrics) ObserveAlignment(rows int) {
	if m == nil {
		return
	}
	m.AlignedPoints.Observe(float64(rows))
}

// SetCharts records the number of defined charts
func (m *Metrics) SetCharts(n int) {
	if m == nil {
		return
	}
	m.ChartsActive.Set(float64(n))
}

// RefreshRun records a scheduled refresh
func (m *Metrics) RefreshRun() {
	if m == nil {
		return
	}
	m.RefreshRunsTotal.Inc()
}
