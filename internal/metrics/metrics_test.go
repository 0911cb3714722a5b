package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheHit(CacheChart)
		m.CacheMiss(CacheChart)
		m.ObserveEvaluation(true, time.Millisecond, 3)
		m.SymbolFetchFailed()
		m.ObserveAlignment(10)
		m.SetCharts(2)
		m.RefreshRun()
	})
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.CacheHit(CacheExpression)
	m.CacheHit(CacheExpression)
	m.CacheMiss(CacheAlignment)
	m.ObserveEvaluation(true, 5*time.Millisecond, 2)
	m.ObserveEvaluation(false, time.Millisecond, 0)
	m.SetCharts(4)
	m.RefreshRun()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues(CacheExpression)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues(CacheAlignment)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PointErrorsTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ChartsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshRunsTotal))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics(nil)
	m.SetCharts(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "composite_charts 1")
}
