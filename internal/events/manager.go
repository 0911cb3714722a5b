package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus for subscriptions
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Emit publishes typed data as an event of data.EventType() and logs it
func (m *Manager) Emit(module string, data EventData) {
	if data == nil {
		return
	}

	event := Event{
		ID:        uuid.NewString(),
		Type:      data.EventType(),
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	m.log.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("module", module).
		Interface("data", data).
		Msg("Event emitted")

	m.bus.Publish(event)
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.Emit(module, &ErrorEventData{
		Error:   err.Error(),
		Context: context,
	})
}
