package events

import (
	"sync"
	"sync/atomic"
)

// Handler receives published events. Handlers run on the publisher's goroutine
// and must not block.
type Handler func(event *Event)

// Subscription identifies a registered handler
type Subscription uint64

type subscriber struct {
	id      Subscription
	handler Handler
}

// Bus fans events out to the handlers subscribed to their type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscriber
	nextID   atomic.Uint64
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType][]subscriber)}
}

// Subscribe registers handler for eventType
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	id := Subscription(b.nextID.Add(1))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], subscriber{id: id, handler: handler})
	return id
}

// Unsubscribe removes a handler from every event type it was registered for
func (b *Bus) Unsubscribe(id Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.handlers {
		kept := subs[:0:0]
		for _, s := range subs {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		b.handlers[eventType] = kept
	}
}

// Publish delivers event to every handler subscribed to its type
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.handlers[event.Type]))
	copy(subs, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(event)
	}
}

// SubscriberCount returns the number of handlers registered for eventType
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}
