package cache

import (
	"context"
	"strings"
	"time"

	"github.com/hallgate/access-core/internal/event"
)

// Cache key builders. Using these helpers keeps eviction and population
// agreed on key shapes.
const (
	identityKeyPrefix = "identity:"
	listingKeyPrefix  = "identities:"
)

// IdentityKey returns the cache key for a single identity record.
func IdentityKey(subjectID string) string {
	return identityKeyPrefix + subjectID
}

// ListingKey returns a collection-level cache key, e.g.
// ListingKey("active") → "identities:active".
func ListingKey(suffix string) string {
	return listingKeyPrefix + suffix
}

// KeyClass returns the logical class of a cache key for metrics tagging.
func KeyClass(key string) string {
	switch {
	case strings.HasPrefix(key, listingKeyPrefix):
		return "listing"
	case strings.HasPrefix(key, identityKeyPrefix):
		return "identity"
	default:
		return "other"
	}
}

// Logger defines the logging interface used by the Coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Coordinator subscribes to identity mutation events and evicts affected
// cache entries, decoupled from the request path.
//
// Eviction is idempotent and commutative, so duplicate or concurrent
// delivery of the same event needs no additional coordination.
type Coordinator struct {
	cache  *Store
	bus    event.Subscriber
	logger Logger

	purgeInterval time.Duration
}

// NewCoordinator creates a coordinator over the given cache and bus.
func NewCoordinator(cache *Store, bus event.Subscriber) *Coordinator {
	return &Coordinator{
		cache:         cache,
		bus:           bus,
		logger:        noopLogger{},
		purgeInterval: time.Minute,
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// Start subscribes to identity events and begins the background expiry
// purge. It returns once the subscription is registered; eviction then
// happens on the bus's delivery goroutines. The purge loop stops when ctx
// is cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.bus.SubscribeIdentityEvents(c.handleEvent); err != nil {
		return err
	}

	go c.purgeLoop(ctx)
	return nil
}

// handleEvent evicts the single-identity entry and all listing entries
// for any identity-scoped mutation. Unknown event types are ignored with
// a warning rather than failing: a newer publisher must not wedge an
// older consumer.
func (c *Coordinator) handleEvent(ev event.IdentityEvent) {
	switch ev.Type {
	case event.TypeIdentityCreated,
		event.TypeIdentityUpdated,
		event.TypeIdentityDeleted,
		event.TypePasswordChanged,
		event.TypeLoggedOut:
		c.cache.Evict(IdentityKey(ev.SubjectID))
		evicted := c.cache.EvictPrefix(listingKeyPrefix)
		c.logger.Debug("cache invalidated",
			"event", string(ev.Type),
			"subject_id", ev.SubjectID,
			"listings_evicted", evicted,
		)
	default:
		c.logger.Warn("unknown identity event type", "event", string(ev.Type))
	}
}

// purgeLoop periodically drops expired entries to bound memory.
func (c *Coordinator) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(c.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if purged := c.cache.PurgeExpired(); purged > 0 {
				c.logger.Debug("expired cache entries purged", "count", purged)
			}
		}
	}
}
