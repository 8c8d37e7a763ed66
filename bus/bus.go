package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// subscriptionCounter generates unique subscription IDs; monotonic counter
// instead of time.Now().UnixNano() to avoid concurrent collisions.
var subscriptionCounter int64

// Event is anything deliverable over the bus.
type Event interface {
	Timestamp() time.Time
	Type() EventType
}

// Handler consumes a single event.
type Handler func(Event)

// Bus defines the event bus contract.
type Bus interface {
	Publish(event Event)
	Subscribe(eventType EventType, handler Handler) string
	Unsubscribe(subscriptionID string)
	Stop()
}

// EventBus is the default in-process Bus implementation. A single dispatch
// goroutine drains the buffered channel and fans each event out to the
// handlers subscribed to its type.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType]map[string]Handler
	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// New creates a started event bus. A nil logger falls back to zap.NewNop().
func New(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &EventBus{
		handlers: make(map[EventType]map[string]Handler),
		events:   make(chan Event, 256),
		done:     make(chan struct{}),
		logger:   logger.With(zap.String("component", "bus")),
	}
	go b.dispatch()
	return b
}

// Publish enqueues an event for delivery. Events are dropped when the bus is
// stopped or the buffer is full.
func (b *EventBus) Publish(event Event) {
	select {
	case b.events <- event:
	case <-b.done:
	default:
		b.logger.Warn("event buffer full, dropping event", zap.String("type", string(event.Type())))
	}
}

// Subscribe registers a handler for an event type and returns its subscription ID.
func (b *EventBus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}
	id := fmt.Sprintf("%s-%d", eventType, atomic.AddInt64(&subscriptionCounter, 1))
	b.handlers[eventType][id] = handler
	return id
}

// Unsubscribe removes a subscription by ID.
func (b *EventBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, handlers := range b.handlers {
		if _, ok := handlers[subscriptionID]; ok {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(b.handlers, eventType)
			}
			return
		}
	}
}

// Stop halts dispatch. Idempotent; events published afterwards are dropped.
func (b *EventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}

func (b *EventBus) dispatch() {
	for {
		select {
		case event := <-b.events:
			b.deliver(event)
		case <-b.done:
			// Drain buffered events so late publishers (e.g. a shutdown
			// announcement) still reach their subscribers.
			for {
				select {
				case event := <-b.events:
					b.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (b *EventBus) deliver(event Event) {
	b.mu.RLock()
	src := b.handlers[event.Type()]
	handlers := make([]Handler, 0, len(src))
	for _, h := range src {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		h := handler
		go func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", zap.Any("recover", r))
				}
			}()
			h(event)
		}()
	}
}
