package stream

import (
	"context"
	"sync"
	"time"
)

// MemoryBus is an in-process Bus for single-node deployments and tests.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]HandlerFunc // sessionID -> subID -> handler
	closed bool
}

// NewMemoryBus creates an in-process event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]HandlerFunc)}
}

// Publish delivers the event synchronously to current subscribers.
func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	handlers := make([]HandlerFunc, 0, len(b.subs[ev.SessionID]))
	for _, fn := range b.subs[ev.SessionID] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
	return nil
}

// Subscribe registers a handler for one session's events.
func (b *MemoryBus) Subscribe(sessionID string, fn HandlerFunc) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, context.Canceled
	}

	b.nextID++
	id := b.nextID
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]HandlerFunc)
	}
	b.subs[sessionID][id] = fn

	return newSubscription(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[sessionID], id)
	}), nil
}

// Close drops all subscriptions.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subs = make(map[string]map[int]HandlerFunc)
	return nil
}

// Ensure MemoryBus satisfies Bus.
var _ Bus = (*MemoryBus)(nil)
