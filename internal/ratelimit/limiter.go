// Package ratelimit admits or rejects requests based on a sliding time
// window per key. Authenticated callers key by subject ID, anonymous ones
// by network address, so an abusive anonymous source cannot exhaust a
// legitimate account's budget and vice versa. Distinct Limiter instances
// protect distinct operation classes: credential issuance gets a much
// stricter window than generic reads.
package ratelimit

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hallgate/access-core/internal/clock"
)

// shardCount is the number of key shards. Each shard has its own mutex
// and map so contention on one hot key does not serialise unrelated keys.
const shardCount = 16

// defaultMaxKeysPerShard is the per-shard size threshold that triggers a
// purge of keys whose entire window has aged out.
const defaultMaxKeysPerShard = 4096

// RateExceededError reports a rejected admission and how long the caller
// should back off before the oldest recorded timestamp leaves the window.
type RateExceededError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateExceededError) Error() string {
	return fmt.Sprintf("rate exceeded for %q, retry after %s", e.Key, e.RetryAfter)
}

// Config contains sliding-window settings for one Limiter instance.
type Config struct {
	// Ceiling is the maximum number of admissions per key within Window.
	Ceiling int

	// Window is the trailing interval admissions are counted over.
	Window time.Duration

	// MaxKeysPerShard overrides the purge threshold (0 = default).
	MaxKeysPerShard int
}

// Limiter is a sharded sliding-window admission controller.
//
// Thread Safety: Admit is safe for unlimited concurrent callers. Within a
// shard the prune/count/append sequence runs under the shard mutex, so no
// two concurrent calls for the same key can both be admitted into the
// last remaining slot.
type Limiter struct {
	ceiling int
	window  time.Duration
	maxKeys int
	clk     clock.Clock
	shards  [shardCount]shard
}

type shard struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

// New creates a Limiter. Non-positive ceiling or window fall back to
// 10 admissions per minute.
func New(cfg Config, clk clock.Clock) *Limiter {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MaxKeysPerShard <= 0 {
		cfg.MaxKeysPerShard = defaultMaxKeysPerShard
	}
	if clk == nil {
		clk = clock.System()
	}

	l := &Limiter{
		ceiling: cfg.Ceiling,
		window:  cfg.Window,
		maxKeys: cfg.MaxKeysPerShard,
		clk:     clk,
	}
	for i := range l.shards {
		l.shards[i].hits = make(map[string][]time.Time)
	}
	return l
}

// Admit records an admission for key if the key's count within the
// trailing window is below the ceiling, and returns a *RateExceededError
// otherwise. Rejected calls do not consume budget: only admitted
// timestamps are recorded.
func (l *Limiter) Admit(key string) error {
	now := l.clk.Now()
	threshold := now.Add(-l.window)

	sh := &l.shards[shardFor(key)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	hits := sh.hits[key]
	kept := hits[:0]
	for _, hit := range hits {
		if hit.After(threshold) {
			kept = append(kept, hit)
		}
	}

	if len(kept) >= l.ceiling {
		retryAfter := kept[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		sh.hits[key] = kept
		return &RateExceededError{Key: key, RetryAfter: retryAfter}
	}

	sh.hits[key] = append(kept, now)

	// Best-effort memory discipline: on a size threshold, drop keys whose
	// entire sequence has aged out. Never affects the admit decision.
	if len(sh.hits) > l.maxKeys {
		for k, v := range sh.hits {
			if len(v) == 0 || !v[len(v)-1].After(threshold) {
				delete(sh.hits, k)
			}
		}
	}

	return nil
}

// Pending returns the number of timestamps currently recorded for key
// within the window. Intended for tests and monitoring.
func (l *Limiter) Pending(key string) int {
	threshold := l.clk.Now().Add(-l.window)

	sh := &l.shards[shardFor(key)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	count := 0
	for _, hit := range sh.hits[key] {
		if hit.After(threshold) {
			count++
		}
	}
	return count
}

// KeyCount returns the total number of tracked keys across all shards.
func (l *Limiter) KeyCount() int {
	total := 0
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		total += len(sh.hits)
		sh.mu.Unlock()
	}
	return total
}

// PurgeIdle removes keys whose entire recorded sequence has aged out of
// the window, and returns how many keys were dropped. Admit performs the
// same purge opportunistically on a size threshold; this method lets a
// caller run it on a schedule instead.
func (l *Limiter) PurgeIdle() int {
	threshold := l.clk.Now().Add(-l.window)

	dropped := 0
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		for k, v := range sh.hits {
			if len(v) == 0 || !v[len(v)-1].After(threshold) {
				delete(sh.hits, k)
				dropped++
			}
		}
		sh.mu.Unlock()
	}
	return dropped
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key)) //nolint:errcheck // fnv Write never fails
	return h.Sum32() % shardCount
}
