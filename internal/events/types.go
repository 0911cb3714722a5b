// Package events provides event management functionality.
package events

// EventType represents different event types
type EventType string

const (
	// Composite chart lifecycle
	CompositeChartCreated         EventType = "COMPOSITE_CHART_CREATED"
	CompositeChartUpdated         EventType = "COMPOSITE_CHART_UPDATED"
	CompositeChartDeleted         EventType = "COMPOSITE_CHART_DELETED"
	CompositeChartSettingsChanged EventType = "COMPOSITE_CHART_SETTINGS_CHANGED"

	// Market data
	MarketDataUpdated EventType = "MARKET_DATA_UPDATED"

	ErrorOccurred EventType = "ERROR_OCCURRED"
)
