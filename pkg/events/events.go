package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/shepherd/pkg/log"
)

// EventType categorizes monitor events
type EventType string

const (
	// EventInstanceStateChanged fires on every lifecycle transition
	EventInstanceStateChanged EventType = "instance.state_changed"

	// EventInstanceFailed fires when an instance reaches the failed state
	EventInstanceFailed EventType = "instance.failed"

	// EventRunStarted fires when a run cycle begins
	EventRunStarted EventType = "run.started"

	// EventRunCompleted fires when every instance reached a terminal state
	EventRunCompleted EventType = "run.completed"
)

// Event is a single monitor event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Instance  string                 `json:"instance,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Handler processes events
type Handler func(Event)

// Broker distributes events to subscribers
type Broker struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a specific event type
func (b *Broker) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all events
func (b *Broker) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish sends an event to all matching subscribers. Handlers run
// synchronously on the caller's goroutine, so they must not block.
func (b *Broker) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := append([]Handler{}, b.handlers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	log.Logger.Debug().
		Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Str("instance", event.Instance).
		Msg("Publishing event")

	for _, handler := range handlers {
		handler(event)
	}
}
