package expression

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aristath/sentinel-composite/internal/cache"
	"github.com/aristath/sentinel-composite/internal/domain"
	"github.com/aristath/sentinel-composite/internal/metrics"
	"github.com/aristath/sentinel-composite/internal/modules/alignment"
	"github.com/aristath/sentinel-composite/internal/modules/calendar"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAligner struct {
	mock.Mock
}

func (m *mockAligner) AlignMultipleSymbols(
	ctx context.Context,
	symbols []string,
	start, end time.Time,
	fillMethod alignment.FillMethod,
	market string,
) ([]domain.AlignedPoint, error) {
	args := m.Called(ctx, symbols, start, end, fillMethod, market)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AlignedPoint), args.Error(1)
}

type mockDataSource struct {
	mock.Mock
}

func (m *mockDataSource) GetOHLCVData(ctx context.Context, symbol string, start, end time.Time) ([]domain.OHLCVPoint, error) {
	args := m.Called(ctx, symbol, start, end)
	return args.Get(0).([]domain.OHLCVPoint), args.Error(1)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// alignedRows builds consecutive daily rows; a NaN leaves the symbol out of that row
func alignedRows(start time.Time, series map[string][]float64) []domain.AlignedPoint {
	n := 0
	for _, values := range series {
		n = len(values)
	}
	rows := make([]domain.AlignedPoint, n)
	for i := range rows {
		rows[i] = domain.AlignedPoint{
			Timestamp:    start.AddDate(0, 0, i),
			Values:       map[string]domain.OHLCVPoint{},
			IsTradingDay: true,
		}
		for symbol, values := range series {
			if math.IsNaN(values[i]) {
				continue
			}
			v := values[i]
			rows[i].Values[symbol] = domain.OHLCVPoint{
				Timestamp: rows[i].Timestamp,
				Open:      v - 1, High: v + 1, Low: v - 2, Close: v,
			}
		}
	}
	return rows
}

func bars(start time.Time, values ...float64) []domain.OHLCVPoint {
	out := make([]domain.OHLCVPoint, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		out = append(out, domain.OHLCVPoint{
			Timestamp: start.AddDate(0, 0, i),
			Open:      v, High: v, Low: v, Close: v,
		})
	}
	return out
}

func assertSeries(t *testing.T, expected, actual []float64) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		if math.IsNaN(expected[i]) {
			assert.True(t, math.IsNaN(actual[i]), "index %d: expected NaN, got %v", i, actual[i])
			continue
		}
		assert.InDelta(t, expected[i], actual[i], 1e-9, "index %d", i)
	}
}

func bindings(names ...string) map[string]domain.ExpressionVariable {
	vars := make(map[string]domain.ExpressionVariable, len(names))
	for _, name := range names {
		vars[name] = domain.NewExpressionVariable(name, name)
	}
	return vars
}

var nan = math.NaN()

func newTestEngine(aligner Aligner) *Engine {
	return NewEngine(aligner, cache.NewMemoryStore(64), time.Hour, zerolog.Nop())
}

func evaluate(engine *Engine, expression string, vars map[string]domain.ExpressionVariable) *ExpressionResult {
	return engine.Evaluate(context.Background(), expression, vars, day(2024, 1, 1), day(2024, 1, 31), calendar.MarketGlobal)
}

func TestEvaluate_SMAOverFivePoints(t *testing.T) {
	aligner := &mockAligner{}
	aligner.On("AlignMultipleSymbols", mock.Anything, []string{"USD"}, mock.Anything, mock.Anything, alignment.FillForward, calendar.MarketGlobal).
		Return(alignedRows(day(2024, 1, 1), map[string][]float64{"USD": {1, 2, 3, 4, 5}}), nil)

	result := evaluate(newTestEngine(aligner), "SMA(USD, 3)", bindings("USD"))

	require.True(t, result.Success, result.Error)
	assertSeries(t, []float64{nan, nan, 2, 3, 4}, result.Values)
	assert.Len(t, result.Timestamps, 5)
	assert.Equal(t, day(2024, 1, 1), result.Timestamps[0])
	assert.Equal(t, ExpressionTypeFunction, result.Metadata.ExpressionType)
	assert.Equal(t, []string{"SMA"}, result.Metadata.FunctionsUsed)
	assert.Equal(t, 5, result.Metadata.DataPoints)
	assert.Zero(t, result.Metadata.PointErrors)
	aligner.AssertExpectations(t)
}

func TestEvaluate_ForwardFilledRatioScenario(t *testing.T) {
	src := &mockDataSource{}
	src.On("GetOHLCVData", mock.Anything, "USD", mock.Anything, mock.Anything).
		Return(bars(day(1403, 1, 1), 10, 11, 12, 13, 14), nil)
	src.On("GetOHLCVData", mock.Anything, "GOLD", mock.Anything, mock.Anything).
		Return(bars(day(1403, 1, 1), 100, 200, nan, 400, 500), nil)

	aligner := alignment.NewService(src, calendar.New(zerolog.Nop()), cache.NewMemoryStore(16), 0, zerolog.Nop())
	engine := newTestEngine(aligner)

	result := engine.Evaluate(context.Background(), "USD / GOLD", bindings("USD", "GOLD"),
		day(1403, 1, 1), day(1403, 1, 5), calendar.MarketTSE)

	require.True(t, result.Success, result.Error)
	require.Len(t, result.Timestamps, 5)
	assertSeries(t, []float64{0.1, 0.055, 0.06, 0.0325, 0.028}, result.Values)
	assert.Equal(t, []string{"GOLD", "USD"}, result.Metadata.SymbolsUsed)
	assert.Equal(t, []string{"GOLD", "USD"}, result.VariableNames)
	assert.Equal(t, ExpressionTypeSimple, result.Metadata.ExpressionType)
}

func TestEvaluate_DivisionByZeroIsPointLocal(t *testing.T) {
	aligner := &mockAligner{}
	aligner.On("AlignMultipleSymbols", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(alignedRows(day(2024, 1, 1), map[string][]float64{"GOLD": {2, 0, 4}}), nil)

	result := evaluate(newTestEngine(aligner), "1/GOLD", bindings("GOLD"))

	require.True(t, result.Success, result.Error)
	assertSeries(t, []float64{0.5, nan, 0.25}, result.Values)
	assert.Equal(t, 1, result.Metadata.PointErrors)
}

func TestEvaluate_AbsentSymbolYieldsNaN(t *testing.T) {
	aligner := &mockAligner{}
	aligner.On("AlignMultipleSymbols", mock.Anything, []string{"GOLD", "USD"}, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(alignedRows(day(2024, 1, 1), map[string][]float64{
			"USD":  {1, 2, 3},
			"GOLD": {nan, 4, 6},
		}), nil)

	result := evaluate(newTestEngine(aligner), "USD + GOLD", bindings("USD", "GOLD"))

	require.True(t, result.Success, result.Error)
	assertSeries(t, []float64{nan, 6, 9}, result.Values)
	assert.Zero(t, result.Metadata.PointErrors, "upstream NaN is not a point error")
}

func TestEvaluate_PriceType(t *testing.T) {
	aligner := &mockAligner{}
	aligner.On("AlignMultipleSymbols", mock.Anything, []string{"USD"}, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(alignedRows(day(2024, 1, 1), map[string][]float64{"USD": {10, 20}}), nil)

	vars := map[string]domain.ExpressionVariable{
		"H": {Name: "H", Symbol: "USD", PriceType: domain.PriceHigh},
		"L": {Name: "L", Symbol: "USD", PriceType: domain.PriceLow},
	}
	result := evaluate(newTestEngine(aligner), "H - L", vars)

	require.True(t, result.Success, result.Error)
	assertSeries(t, []float64{3, 3}, result.Values)
	assert.Equal(t, []string{"USD"}, result.Metadata.SymbolsUsed)
}

func TestEvaluate_FunctionsOverCompoundArguments(t *testing.T) {
	tests := []struct {
		expression string
		expected   []float64
	}{
		{"SMA(USD * 2, 2)", []float64{nan, 3, 5, 7, 9}},
		{"SMA(USD, 2) + SMA(USD, 2)", []float64{nan, 3, 5, 7, 9}},
		{"MAX(USD, 2) - MIN(USD, 2)", []float64{nan, 1, 1, 1, 1}},
		{"EMA(USD, 1)", []float64{1, 2, 3, 4, 5}},
		{"SMA(SMA(USD, 2), 2)", []float64{nan, nan, 2, 3, 4}},
		{"POW(USD, 2)", []float64{1, 4, 9, 16, 25}},
		{"IF USD > 2 THEN SMA(USD, 2) ELSE 0", []float64{0, 0, 2.5, 3.5, 4.5}},
		{"STDEV(USD, 1)", []float64{0, 0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			aligner := &mockAligner{}
			aligner.On("AlignMultipleSymbols", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(alignedRows(day(2024, 1, 1), map[string][]float64{"USD": {1, 2, 3, 4, 5}}), nil)

			result := evaluate(newTestEngine(aligner), tt.expression, bindings("USD"))

			require.True(t, result.Success, result.Error)
			assertSeries(t, tt.expected, result.Values)
		})
	}
}

func TestEvaluate_Failures(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		vars       map[string]domain.ExpressionVariable
		expected   string
	}{
		{"syntax error", "USD +", bindings("USD"), "unexpected end of expression"},
		{"missing variable", "X + Z", bindings("X"), "missing variables: Z"},
		{"unknown function", "FOO(X)", bindings("X"), "unknown function: FOO"},
		{"lower case function", "sma(X, 2)", bindings("X"), "unknown function: sma"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aligner := &mockAligner{}
			result := evaluate(newTestEngine(aligner), tt.expression, tt.vars)

			assert.False(t, result.Success)
			assert.Contains(t, result.Error, tt.expected)
			assert.Empty(t, result.Values)
			aligner.AssertNotCalled(t, "AlignMultipleSymbols",
				mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestEvaluate_NoAlignedData(t *testing.T) {
	aligner := &mockAligner{}
	aligner.On("AlignMultipleSymbols", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.AlignedPoint{}, nil)

	result := evaluate(newTestEngine(aligner), "USD", bindings("USD"))

	assert.False(t, result.Success)
	assert.Equal(t, "no aligned data available", result.Error)
}

func TestEvaluate_AlignmentError(t *testing.T) {
	aligner := &mockAligner{}
	aligner.On("AlignMultipleSymbols", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("end date before start date"))

	result := evaluate(newTestEngine(aligner), "USD", bindings("USD"))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "end date before start date")
}

func TestEvaluate_RecoversFromPanic(t *testing.T) {
	aligner := &mockAligner{}
	aligner.On("AlignMultipleSymbols", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("boom") })

	var result *ExpressionResult
	require.NotPanics(t, func() {
		result = evaluate(newTestEngine(aligner), "USD", bindings("USD"))
	})
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, "evaluation failed: boom", result.Error)
}

func TestEvaluate_CachesSuccessfulResults(t *testing.T) {
	aligner := &mockAligner{}
	aligner.On("AlignMultipleSymbols", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(alignedRows(day(2024, 1, 1), map[string][]float64{"USD": {1, 2, 3}}), nil)

	engine := newTestEngine(aligner)
	vars := bindings("USD")

	first := evaluate(engine, "USD * 2", vars)
	second := evaluate(engine, "USD  *  2", vars)

	require.True(t, second.Success)
	assert.Equal(t, first.Values, second.Values)
	assert.Equal(t, first.Timestamps, second.Timestamps)
	assert.Equal(t, first.Metadata.SymbolsUsed, second.Metadata.SymbolsUsed)
	assert.Equal(t, first.Metadata.DataPoints, second.Metadata.DataPoints)
	aligner.AssertNumberOfCalls(t, "AlignMultipleSymbols", 1)

	// different bindings are a different entry
	high := map[string]domain.ExpressionVariable{
		"USD": {Name: "USD", Symbol: "USD", PriceType: domain.PriceHigh},
	}
	evaluate(engine, "USD * 2", high)
	aligner.AssertNumberOfCalls(t, "AlignMultipleSymbols", 2)

	require.NoError(t, engine.InvalidateExpression(context.Background(), "USD * 2", vars))
	evaluate(engine, "USD * 2", vars)
	evaluate(engine, "USD * 2", high)
	aligner.AssertNumberOfCalls(t, "AlignMultipleSymbols", 3)

	require.NoError(t, engine.ClearCache(context.Background()))
	evaluate(engine, "USD * 2", vars)
	aligner.AssertNumberOfCalls(t, "AlignMultipleSymbols", 4)
}

func TestEvaluate_FailuresAreNotCached(t *testing.T) {
	aligner := &mockAligner{}
	aligner.On("AlignMultipleSymbols", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.AlignedPoint{}, nil).Once()
	aligner.On("AlignMultipleSymbols", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(alignedRows(day(2024, 1, 1), map[string][]float64{"USD": {1}}), nil)

	engine := newTestEngine(aligner)

	assert.False(t, evaluate(engine, "USD", bindings("USD")).Success)
	assert.True(t, evaluate(engine, "USD", bindings("USD")).Success)
}

func TestEvaluate_WithoutCache(t *testing.T) {
	aligner := &mockAligner{}
	aligner.On("AlignMultipleSymbols", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(alignedRows(day(2024, 1, 1), map[string][]float64{"USD": {1}}), nil)

	engine := NewEngine(aligner, nil, 0, zerolog.Nop())
	evaluate(engine, "USD", bindings("USD"))
	evaluate(engine, "USD", bindings("USD"))

	aligner.AssertNumberOfCalls(t, "AlignMultipleSymbols", 2)
	assert.NoError(t, engine.ClearCache(context.Background()))
	assert.NoError(t, engine.InvalidateExpression(context.Background(), "USD", bindings("USD")))
}

func TestEvaluate_RecordsMetrics(t *testing.T) {
	aligner := &mockAligner{}
	aligner.On("AlignMultipleSymbols", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(alignedRows(day(2024, 1, 1), map[string][]float64{"GOLD": {0, 1}}), nil)

	m := metrics.NewMetrics(nil)
	engine := newTestEngine(aligner)
	engine.SetMetrics(m)

	evaluate(engine, "1 / GOLD", bindings("GOLD"))
	evaluate(engine, "1 / GOLD", bindings("GOLD"))
	evaluate(engine, "1 / ", bindings("GOLD"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues(metrics.CacheExpression)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues(metrics.CacheExpression)))
}
