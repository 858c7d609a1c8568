// Package events provides the process-wide publish point for lifecycle
// events consumed by UI layers.
package events

import "sync"

// Type identifies a lifecycle event.
type Type string

const (
	// AppCreateComplete fires once when the session manager finishes
	// initializing.
	AppCreateComplete Type = "app_create_complete"
	// LogoutComplete fires exactly once per logout call, after the
	// account removal has finished.
	LogoutComplete Type = "logout_complete"
)

// Bus fans lifecycle events out to subscribers. Safe for concurrent use;
// subscribers are called synchronously on the publishing goroutine.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]func(Type)
	next int
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Type))}
}

// Subscribe registers fn for every published event and returns a function
// that removes the subscription.
func (b *Bus) Subscribe(fn func(Type)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every current subscriber. The subscriber
// snapshot is taken under the lock but callbacks run outside it, so a
// subscriber may unsubscribe from within its own callback.
func (b *Bus) Publish(t Type) {
	b.mu.RLock()
	subs := make([]func(Type), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(t)
	}
}
