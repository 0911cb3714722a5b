package composite

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aristath/sentinel-composite/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleChart() *CompositeChart {
	updated := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	return &CompositeChart{
		ID:         "composite_4_1718461800",
		Name:       "Gold-adjusted index",
		Expression: "(USD * GOLD) / SMA(STOCK, 20)^2",
		Variables: map[string]domain.ExpressionVariable{
			"USD":   domain.NewExpressionVariable("USD", "USD"),
			"GOLD":  {Name: "GOLD", Symbol: "XAU", PriceType: domain.PriceHigh, Description: "gold high"},
			"STOCK": domain.NewExpressionVariable("STOCK", "TEDPIX"),
		},
		ChartType:       ChartTypeOscillator,
		DisplayLocation: DisplayOverlay,
		Style:           ChartStyle{Color: "#112233", LineWidth: 3, LineStyle: LineDotted, FillOpacity: 0.25, ShowMarkers: true, MarkerSize: 6},
		Market:          "TSE",
		Enabled:         true,
		AutoUpdate:      false,
		CreatedAt:       time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC),
		LastUpdated:     &updated,
	}
}

func TestChartRecord_RoundTrip(t *testing.T) {
	chart := sampleChart()

	data, err := json.Marshal(chart.ToRecord())
	require.NoError(t, err)

	var record ChartRecord
	require.NoError(t, json.Unmarshal(data, &record))

	restored, err := ChartFromRecord(record)
	require.NoError(t, err)
	assert.Equal(t, chart, restored)
}

func TestChartRecord_RoundTripKeepsSubSecondTimes(t *testing.T) {
	chart := sampleChart()
	chart.CreatedAt = time.Date(2026, 10, 19, 18, 59, 41, 532150546, time.UTC)
	updated := chart.CreatedAt.Add(1500 * time.Microsecond)
	chart.LastUpdated = &updated

	record := chart.ToRecord()
	assert.Equal(t, "2026-10-19T18:59:41.532150546Z", record.CreatedAt)

	restored, err := ChartFromRecord(record)
	require.NoError(t, err)
	assert.Equal(t, chart, restored)
}

func TestChartRecord_JSONShape(t *testing.T) {
	chart := sampleChart()
	chart.LastUpdated = nil

	data, err := json.Marshal(chart.ToRecord())
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "composite_4_1718461800", raw["id"])
	assert.Equal(t, "oscillator", raw["chart_type"])
	assert.Equal(t, "overlay", raw["display_location"])
	assert.Equal(t, "2024-06-15T14:30:00Z", raw["created_at"])
	assert.Nil(t, raw["last_updated"])
	assert.Contains(t, raw, "last_updated")

	style := raw["style"].(map[string]interface{})
	assert.Equal(t, "#112233", style["color"])
	assert.Equal(t, 0.25, style["fill_opacity"])

	gold := raw["variables"].(map[string]interface{})["GOLD"].(map[string]interface{})
	assert.Equal(t, "XAU", gold["symbol"])
	assert.Equal(t, "high", gold["price_type"])
}

func TestChartFromRecord_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ChartRecord)
	}{
		{"chart type", func(r *ChartRecord) { r.ChartType = "candles" }},
		{"display location", func(r *ChartRecord) { r.DisplayLocation = "side" }},
		{"created at", func(r *ChartRecord) { r.CreatedAt = "yesterday" }},
		{"last updated", func(r *ChartRecord) { s := "2024-13-01"; r.LastUpdated = &s }},
		{"variable key mismatch", func(r *ChartRecord) {
			r.Variables["USD"] = domain.NewExpressionVariable("EUR", "EUR")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := sampleChart().ToRecord()
			tt.mutate(&record)

			_, err := ChartFromRecord(record)
			assert.True(t, errors.Is(err, ErrInvalidField), "got %v", err)
		})
	}
}

func TestChartFromRecord_FillsVariableNames(t *testing.T) {
	record := sampleChart().ToRecord()
	record.Variables = map[string]domain.ExpressionVariable{"USD": {Symbol: "USD"}}

	chart, err := ChartFromRecord(record)
	require.NoError(t, err)
	assert.Equal(t, domain.NewExpressionVariable("USD", "USD"), chart.Variables["USD"])
}

func TestChartStyle_Validate(t *testing.T) {
	assert.NoError(t, DefaultChartStyle().Validate())

	tests := []struct {
		name   string
		mutate func(*ChartStyle)
	}{
		{"short color", func(s *ChartStyle) { s.Color = "#FFF" }},
		{"named color", func(s *ChartStyle) { s.Color = "red" }},
		{"zero width", func(s *ChartStyle) { s.LineWidth = 0 }},
		{"line style", func(s *ChartStyle) { s.LineStyle = "wavy" }},
		{"negative opacity", func(s *ChartStyle) { s.FillOpacity = -0.1 }},
		{"marker size", func(s *ChartStyle) { s.MarkerSize = 50 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			style := DefaultChartStyle()
			tt.mutate(&style)
			assert.True(t, errors.Is(style.Validate(), ErrInvalidField))
		})
	}

	withAlpha := DefaultChartStyle()
	withAlpha.Color = "#2962FF80"
	assert.NoError(t, withAlpha.Validate())
}

func TestParseEnums(t *testing.T) {
	ct, err := ParseChartType(" Histogram ")
	require.NoError(t, err)
	assert.Equal(t, ChartTypeHistogram, ct)

	ct, err = ParseChartType("")
	require.NoError(t, err)
	assert.Equal(t, ChartTypeLine, ct)

	loc, err := ParseDisplayLocation("MAIN")
	require.NoError(t, err)
	assert.Equal(t, DisplayMain, loc)

	loc, err = ParseDisplayLocation("")
	require.NoError(t, err)
	assert.Equal(t, DisplaySub, loc)
}

func TestChartUpdate_Fields(t *testing.T) {
	name := "x"
	enabled := true
	u := ChartUpdate{Name: &name, Enabled: &enabled, Variables: map[string]domain.ExpressionVariable{}}

	assert.Equal(t, []string{"name", "variables", "enabled"}, u.Fields())
	assert.Empty(t, ChartUpdate{}.Fields())
}

func TestUpdateFromSettings(t *testing.T) {
	update, err := updateFromSettings(map[string]interface{}{
		"expression": "USD * 2",
		"chart_type": "area",
		"enabled":    false,
		"unrelated":  42,
		"variables":  map[string]interface{}{"USD": map[string]interface{}{"symbol": "USD"}},
	})
	require.NoError(t, err)

	require.NotNil(t, update.Expression)
	assert.Equal(t, "USD * 2", *update.Expression)
	require.NotNil(t, update.ChartType)
	assert.Equal(t, ChartTypeArea, *update.ChartType)
	require.NotNil(t, update.Enabled)
	assert.False(t, *update.Enabled)
	assert.Equal(t, "USD", update.Variables["USD"].Symbol)
	assert.Nil(t, update.Name)

	_, err = updateFromSettings(map[string]interface{}{"enabled": "yes"})
	assert.Error(t, err)
}
