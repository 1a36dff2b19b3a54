// Package stream fans out session-scoped events to subscribers:
// session counters changing, unknown barcodes being logged, presence
// coming and going. Subscribers hold explicit cancelable handles so a
// session switch can tear everything down before re-subscribing.
package stream

import (
	"context"
	"sync"
	"time"
)

// Event types published by the service.
const (
	EventSessionUpdated  = "session.updated"
	EventSessionDeleted  = "session.deleted"
	EventUnknownBarcode  = "unknown_barcode.added"
	EventPresenceChanged = "presence.changed"
)

// Event is one session-scoped notification.
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Payload   interface{} `json:"payload,omitempty"`
	At        time.Time   `json:"at"`
}

// HandlerFunc receives published events. Handlers may run at any time,
// interleaved with other work; they must not assume any ordering
// relative to the subscriber's own operations.
type HandlerFunc func(Event)

// Bus publishes events and registers session-scoped subscribers.
type Bus interface {
	// Publish delivers an event to all subscribers of its session.
	Publish(ctx context.Context, ev Event) error

	// Subscribe registers a handler for one session's events and
	// returns a cancelable handle.
	Subscribe(sessionID string, fn HandlerFunc) (*Subscription, error)

	// Close tears down the bus and all subscriptions.
	Close() error
}

// Subscription is a handle for one active subscriber. Cancel is
// idempotent and the only way to stop delivery.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Cancel stops delivery and releases the subscription's resources.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Registry owns a set of subscriptions so they can be canceled as a
// unit. A session switch cancels the full set before creating new
// subscriptions, preventing stale updates from a previous session.
type Registry struct {
	mu   sync.Mutex
	subs []*Subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add takes ownership of a subscription.
func (r *Registry) Add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, sub)
}

// CancelAll cancels every owned subscription and empties the registry.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}
