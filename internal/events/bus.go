package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler receives published events
type Handler func(Event)

type subscription struct {
	id      string
	handler Handler
}

// Bus delivers events to subscribers synchronously, in subscription order.
// Handlers run outside the bus lock and may publish further events.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]subscription
	log  zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[EventType][]subscription),
		log:  log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers handler for eventType and returns a function that removes it
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	id := uuid.NewString()

	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[eventType]
		for i, s := range subs {
			if s.id == id {
				b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers event to every handler subscribed to its type.
// A panicking handler is logged and does not stop delivery to the others.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[event.Type]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, event)
	}
}

// SubscriberCount returns the number of handlers for eventType
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

func (b *Bus) deliver(s subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Str("subscription", s.id).
				Msg("Event handler panicked")
		}
	}()
	s.handler(event)
}
