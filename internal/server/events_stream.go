package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/sentinel-composite/internal/events"
	"github.com/aristath/sentinel-composite/internal/utils"
	"github.com/rs/zerolog"
)

// streamedEventTypes are the event types forwarded when no filter is given
var streamedEventTypes = []events.EventType{
	events.CompositeChartCreated,
	events.CompositeChartUpdated,
	events.CompositeChartDeleted,
	events.CompositeChartSettingsChanged,
	events.MarketDataUpdated,
	events.ErrorOccurred,
}

// EventsStreamHandler streams bus events to clients as Server-Sent Events
type EventsStreamHandler struct {
	eventBus  *events.Bus
	heartbeat time.Duration
	log       zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus:  eventBus,
		heartbeat: 30 * time.Second,
		log:       log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream?types=A,B
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	eventTypes := streamedEventTypes
	if filter := r.URL.Query().Get("types"); filter != "" {
		eventTypes = nil
		for _, t := range utils.ParseCSV(filter) {
			eventTypes = append(eventTypes, events.EventType(t))
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Bus handlers run on the publisher's goroutine, so they only enqueue
	eventChan := make(chan events.Event, 100)
	handler := func(event events.Event) {
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}

	for _, eventType := range eventTypes {
		unsubscribe := h.eventBus.Subscribe(eventType, handler)
		defer unsubscribe()
	}

	h.log.Info().Int("types", len(eventTypes)).Msg("Client connected to event stream")

	h.send(w, flusher, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			h.send(w, flusher, map[string]interface{}{
				"id":        event.ID,
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			})

		case <-heartbeat.C:
			h.send(w, flusher, map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			})
		}
	}
}

func (h *EventsStreamHandler) send(w http.ResponseWriter, flusher http.Flusher, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		data = []byte(`{"error":"failed to encode event"}`)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
