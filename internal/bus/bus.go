// Package bus is the relay's in-process domain event bus.
package bus

import (
	"log/slog"
	"sync"
)

// MessageBus fans events out to subscribers synchronously, in subscription
// order. A panicking handler is logged and skipped.
type MessageBus struct {
	mu       sync.RWMutex
	order    []string
	handlers map[string]EventHandler
}

func New() *MessageBus {
	return &MessageBus{handlers: make(map[string]EventHandler)}
}

func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[id]; !exists {
		b.order = append(b.order, id)
	}
	b.handlers[id] = handler
}

func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[id]; !exists {
		return
	}
	delete(b.handlers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		dispatch(h, event)
	}
}

func dispatch(h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bus.handler_panic", "event", event.Name, "panic", r)
		}
	}()
	h(event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Subscribe(string, EventHandler) {}
func (Nop) Unsubscribe(string)             {}
func (Nop) Broadcast(Event)                {}
