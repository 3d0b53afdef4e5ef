// Package event defines the identity mutation events published by the
// write path and consumed by the cache invalidation coordinator.
//
// Delivery is fire-and-forget from the mutator's perspective: a publish
// never blocks the mutating operation, and consumers tolerate duplicate
// or reordered delivery (eviction is idempotent and commutative).
package event

import "time"

// Type identifies a kind of identity mutation.
type Type string

const (
	TypeIdentityCreated Type = "created"
	TypeIdentityUpdated Type = "updated"
	TypeIdentityDeleted Type = "deleted"
	TypePasswordChanged Type = "password_changed"
	TypeLoggedOut       Type = "logged_out"
)

// Types lists every identity event type, in no particular order.
var Types = []Type{
	TypeIdentityCreated,
	TypeIdentityUpdated,
	TypeIdentityDeleted,
	TypePasswordChanged,
	TypeLoggedOut,
}

// IdentityEvent is the payload published for every identity mutation.
type IdentityEvent struct {
	Type       Type      `json:"type"`
	SubjectID  string    `json:"subject_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Handler consumes a single identity event. Handlers must be safe for
// concurrent invocation; the bus makes no ordering guarantee.
type Handler func(ev IdentityEvent)

// Publisher emits identity events to the bus.
type Publisher interface {
	PublishIdentityEvent(ev IdentityEvent) error
}

// Subscriber registers a handler for all identity events.
type Subscriber interface {
	SubscribeIdentityEvents(handler Handler) error
}

// Bus is both sides of the event fan-out.
type Bus interface {
	Publisher
	Subscriber
}

// NopPublisher discards every event. Useful when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishIdentityEvent(IdentityEvent) error { return nil }
