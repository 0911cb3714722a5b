package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventDataTypes(t *testing.T) {
	tests := []struct {
		data     EventData
		expected EventType
	}{
		{&ChartCreatedData{}, CompositeChartCreated},
		{&ChartUpdatedData{}, CompositeChartUpdated},
		{&ChartDeletedData{}, CompositeChartDeleted},
		{&ChartSettingsChangedData{}, CompositeChartSettingsChanged},
		{&MarketDataUpdatedData{}, MarketDataUpdated},
		{&ErrorEventData{}, ErrorOccurred},
		{&GenericEventData{Type: "CUSTOM"}, EventType("CUSTOM")},
	}

	for _, tt := range tests {
		t.Run(string(tt.expected), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.data.EventType())
		})
	}
}

func TestEvent_UnmarshalRestoresTypedData(t *testing.T) {
	original := Event{
		ID:        "evt-1",
		Type:      CompositeChartUpdated,
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Module:    "composite",
		Data: &ChartUpdatedData{
			ChartID:           "composite_1_1714557600",
			Name:              "Gold ratio",
			Fields:            []string{"expression", "name"},
			ExpressionChanged: true,
		},
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.Type, decoded.Type)
	assert.Equal(t, "composite", decoded.Module)

	data, ok := decoded.Data.(*ChartUpdatedData)
	require.True(t, ok, "expected *ChartUpdatedData, got %T", decoded.Data)
	assert.Equal(t, "composite_1_1714557600", data.ChartID)
	assert.Equal(t, "Gold ratio", data.Name)
	assert.True(t, data.ExpressionChanged)
	assert.Equal(t, []string{"expression", "name"}, data.Fields)
}

func TestEvent_UnmarshalUnknownTypeFallsBackToGeneric(t *testing.T) {
	raw := []byte(`{"id":"x","type":"SOMETHING_ELSE","module":"m","data":{"k":"v"}}`)

	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))

	generic, ok := decoded.Data.(*GenericEventData)
	require.True(t, ok)
	assert.Equal(t, EventType("SOMETHING_ELSE"), generic.EventType())
	assert.Equal(t, "v", generic.Data["k"])
}

func TestEvent_UnmarshalNullData(t *testing.T) {
	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(`{"type":"MARKET_DATA_UPDATED","data":null}`), &decoded))
	assert.Nil(t, decoded.Data)
}
