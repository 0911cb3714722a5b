package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// ChartCreatedData contains data for CompositeChartCreated events
type ChartCreatedData struct {
	ChartID    string `json:"chart_id"`
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// EventType returns the event type for ChartCreatedData
func (d *ChartCreatedData) EventType() EventType {
	return CompositeChartCreated
}

// ChartUpdatedData contains data for CompositeChartUpdated events
type ChartUpdatedData struct {
	ChartID           string   `json:"chart_id"`
	Name              string   `json:"name"`
	Fields            []string `json:"fields"`
	ExpressionChanged bool     `json:"expression_changed"`
}

// EventType returns the event type for ChartUpdatedData
func (d *ChartUpdatedData) EventType() EventType {
	return CompositeChartUpdated
}

// ChartDeletedData contains data for CompositeChartDeleted events
type ChartDeletedData struct {
	ChartID string `json:"chart_id"`
	Name    string `json:"name"`
}

// EventType returns the event type for ChartDeletedData
func (d *ChartDeletedData) EventType() EventType {
	return CompositeChartDeleted
}

// ChartSettingsChangedData contains data for CompositeChartSettingsChanged events.
// Settings may carry "expression" and "variables" overrides.
type ChartSettingsChangedData struct {
	ChartID  string                 `json:"chart_id"`
	Settings map[string]interface{} `json:"settings"`
}

// EventType returns the event type for ChartSettingsChangedData
func (d *ChartSettingsChangedData) EventType() EventType {
	return CompositeChartSettingsChanged
}

// MarketDataUpdatedData contains data for MarketDataUpdated events
type MarketDataUpdatedData struct {
	Symbols []string `json:"symbols,omitempty"`
	Rows    int      `json:"rows"`
}

// EventType returns the event type for MarketDataUpdatedData
func (d *MarketDataUpdatedData) EventType() EventType {
	return MarketDataUpdated
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// Event is a published event with typed data
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// UnmarshalJSON restores the typed Data from the event type
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		e.Data = nil
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case CompositeChartCreated:
		eventData = &ChartCreatedData{}
	case CompositeChartUpdated:
		eventData = &ChartUpdatedData{}
	case CompositeChartDeleted:
		eventData = &ChartDeletedData{}
	case CompositeChartSettingsChanged:
		eventData = &ChartSettingsChangedData{}
	case MarketDataUpdated:
		eventData = &MarketDataUpdatedData{}
	case ErrorOccurred:
		eventData = &ErrorEventData{}
	default:
		generic := &GenericEventData{Type: aux.Type}
		if err := json.Unmarshal(aux.Data, &generic.Data); err != nil {
			return err
		}
		e.Data = generic
		return nil
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}
