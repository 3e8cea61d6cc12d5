package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event types published on the bus
const (
	TypeSessionStarted     = "session.started"
	TypeSessionStopped     = "session.stopped"
	TypeSegmentTranscribed = "segment.transcribed"
	TypeImportantMarked    = "important.marked"
	TypeExportCompleted    = "export.completed"
	TypeExportFailed       = "export.failed"
)

// Event is one notification delivered to subscribers
type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Handler receives published events. A handler error is logged and
// does not stop delivery to other subscribers.
type Handler func(Event) error

// Subscription identifies one registered handler so it can be removed
// later. Handlers are not comparable, so removal goes through the id
// handed out at registration.
type Subscription struct {
	eventType string
	id        uint64
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus fans events out to registered handlers synchronously. It is
// injected into the components that publish, so there is no package
// level global to share state between tests.
type Bus struct {
	logger   *slog.Logger
	handlers map[string][]subscriber
	nextID   uint64
	mu       sync.RWMutex

	published uint64
}

// BusStats represents bus statistics
type BusStats struct {
	Published   uint64 `json:"published"`
	Subscribers int    `json:"subscribers"`
}

// NewBus creates an event bus
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger:   logger,
		handlers: make(map[string][]subscriber),
	}
}

// Subscribe registers a handler for one event type and returns a
// subscription for later removal.
func (b *Bus) Subscribe(eventType string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], subscriber{id: b.nextID, handler: handler})
	return Subscription{eventType: eventType, id: b.nextID}
}

// SubscribeAll registers a handler for every event type published so far
// and in the future by using the wildcard type.
func (b *Bus) SubscribeAll(handler Handler) Subscription {
	return b.Subscribe("*", handler)
}

// Unsubscribe removes a previously registered handler. Removing a
// subscription twice is a no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[sub.eventType]
	for i, s := range subs {
		if s.id == sub.id {
			b.handlers[sub.eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[sub.eventType]) == 0 {
		delete(b.handlers, sub.eventType)
	}
}

// Publish delivers the event to all handlers for its type and to
// wildcard subscribers. Handler errors are logged and swallowed.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.handlers["*"]))
	for _, s := range b.handlers[event.Type] {
		handlers = append(handlers, s.handler)
	}
	for _, s := range b.handlers["*"] {
		handlers = append(handlers, s.handler)
	}
	b.mu.RUnlock()

	b.mu.Lock()
	b.published++
	b.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn("Event handler failed",
				"event_type", event.Type,
				"session_id", event.SessionID,
				"error", err)
		}
	}
}

// Emit publishes an event built from its parts. Convenience for
// publishers that do not need to set a timestamp themselves.
func (b *Bus) Emit(eventType, sessionID string, payload map[string]any) {
	b.Publish(Event{Type: eventType, SessionID: sessionID, Payload: payload})
}

// GetStats returns bus statistics
func (b *Bus) GetStats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := 0
	for _, hs := range b.handlers {
		subscribers += len(hs)
	}

	return BusStats{
		Published:   b.published,
		Subscribers: subscribers,
	}
}
