package event

import "sync"

// MemoryBus is a synchronous in-process Bus. It backs tests and
// single-process deployments that run without an external broker.
//
// Thread Safety: all methods are safe for concurrent use. Handlers are
// invoked inline on the publisher's goroutine; callers that need
// fire-and-forget semantics publish from their own goroutine, which is
// what the identity service does.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// PublishIdentityEvent delivers the event to every registered handler.
func (b *MemoryBus) PublishIdentityEvent(ev IdentityEvent) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

// SubscribeIdentityEvents registers a handler for all identity events.
func (b *MemoryBus) SubscribeIdentityEvents(handler Handler) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
	return nil
}
