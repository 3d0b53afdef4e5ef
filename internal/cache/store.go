// Package cache provides the read-through identity cache and the
// event-driven coordinator that keeps it consistent with the record store.
//
// Consistency contract: the cache is eventually consistent, bounded by
// (a) the TTL of any entry not explicitly invalidated and (b) the
// delivery latency of mutation events. A reader that queries after a
// write commits but before its invalidation event is processed may see a
// stale value for up to that latency. This is an accepted trade-off.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hallgate/access-core/internal/clock"
)

// defaultTTL bounds staleness for entries no invalidation event reaches.
const defaultTTL = 5 * time.Minute

// Loader fetches the authoritative value for a key from the record store.
// It must honour ctx cancellation; the cache adds no timeout of its own.
type Loader func(ctx context.Context) (any, error)

// Observer receives the outcome of each cache lookup. Wired to the
// metrics sink so hit ratios are visible per key class. Observers must
// not block; they run on the request path.
type Observer func(key string, hit bool)

// Store is a TTL'd key-value cache populated only through Get; it is
// never pre-warmed.
//
// Thread Safety: all methods are safe for concurrent use. Concurrent Get
// calls for the same uncached key collapse onto a single loader
// invocation (singleflight), so duplicate loads are bounded at one per
// key per flight.
type Store struct {
	ttl time.Duration
	clk clock.Clock

	mu      sync.RWMutex
	entries map[string]entry

	group singleflight.Group

	obsMu    sync.RWMutex
	observer Observer
}

type entry struct {
	value     any
	expiresAt time.Time
}

// NewStore creates a cache store. A non-positive TTL falls back to the
// default (5 minutes).
func NewStore(ttl time.Duration, clk clock.Clock) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Store{
		ttl:     ttl,
		clk:     clk,
		entries: make(map[string]entry),
	}
}

// SetObserver registers a lookup observer. A nil observer disables
// observation.
func (s *Store) SetObserver(obs Observer) {
	s.obsMu.Lock()
	s.observer = obs
	s.obsMu.Unlock()
}

// observe reports a lookup outcome to the registered observer, if any.
func (s *Store) observe(key string, hit bool) {
	s.obsMu.RLock()
	obs := s.observer
	s.obsMu.RUnlock()
	if obs != nil {
		obs(key, hit)
	}
}

// Get returns the live cached value for key, or invokes loader, stores
// the result with the fixed TTL, and returns it. An expired entry is
// never served. The wait on a shared in-flight load is bounded by ctx.
func (s *Store) Get(ctx context.Context, key string, loader Loader) (any, error) {
	now := s.clk.Now()

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok && e.expiresAt.After(now) {
		s.observe(key, true)
		return e.value, nil
	}
	s.observe(key, false)

	ch := s.group.DoChan(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.entries[key] = entry{value: value, expiresAt: s.clk.Now().Add(s.ttl)}
		s.mu.Unlock()

		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("loading %q: %w", key, res.Err)
		}
		return res.Val, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Evict removes the entry for key. Evicting an absent key is a no-op.
func (s *Store) Evict(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// EvictPrefix removes every entry whose key starts with prefix. Used for
// collection-level ("listing") keys tied to a mutated collection.
func (s *Store) EvictPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
			evicted++
		}
	}
	return evicted
}

// PurgeExpired drops entries past their TTL and returns how many were
// removed. Lazy expiry in Get is sufficient for correctness; this only
// reclaims memory.
func (s *Store) PurgeExpired() int {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for k, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, k)
			purged++
		}
	}
	return purged
}

// Len returns the number of entries currently held, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
