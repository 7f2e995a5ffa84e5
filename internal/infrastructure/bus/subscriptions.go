package bus

import (
	"sync"
)

type subscription struct {
	id      int
	handler Handler
}

// SubscriptionTable maps routing keys to ordered handler lists. It is shared
// across all publish/subscribe calls and safe for concurrent use.
type SubscriptionTable struct {
	mu     sync.RWMutex
	nextID int
	byKey  map[string][]subscription

	// onBind/onUnbind run when the first handler for a key is added or the
	// last one removed, for transport topology setup/teardown.
	onBind   func(routingKey string)
	onUnbind func(routingKey string)
}

func NewSubscriptionTable() *SubscriptionTable {
	return &SubscriptionTable{
		byKey: make(map[string][]subscription),
	}
}

// OnBind sets the callback invoked when a routing key gains its first handler
func (t *SubscriptionTable) OnBind(fn func(routingKey string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onBind = fn
}

// OnUnbind sets the callback invoked when a routing key loses its last handler
func (t *SubscriptionTable) OnUnbind(fn func(routingKey string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUnbind = fn
}

// Add registers a handler and returns its subscription id
func (t *SubscriptionTable) Add(routingKey string, handler Handler) int {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	first := len(t.byKey[routingKey]) == 0
	t.byKey[routingKey] = append(t.byKey[routingKey], subscription{id: id, handler: handler})
	bind := t.onBind
	t.mu.Unlock()

	if first && bind != nil {
		bind(routingKey)
	}
	return id
}

// Remove drops a subscription; removing the last one for a key triggers the
// unbind callback.
func (t *SubscriptionTable) Remove(routingKey string, id int) {
	t.mu.Lock()
	subs := t.byKey[routingKey]
	for i, s := range subs {
		if s.id == id {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	var unbind func(string)
	if len(subs) == 0 {
		delete(t.byKey, routingKey)
		unbind = t.onUnbind
	} else {
		t.byKey[routingKey] = subs
	}
	t.mu.Unlock()

	if unbind != nil {
		unbind(routingKey)
	}
}

// Handlers returns the handlers for a routing key in registration order
func (t *SubscriptionTable) Handlers(routingKey string) []Handler {
	t.mu.RLock()
	defer t.mu.RUnlock()

	subs := t.byKey[routingKey]
	handlers := make([]Handler, len(subs))
	for i, s := range subs {
		handlers[i] = s.handler
	}
	return handlers
}

// Count returns the number of subscriptions for a routing key
func (t *SubscriptionTable) Count(routingKey string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byKey[routingKey])
}
