package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hallgate/access-core/internal/clock"
)

func TestLimiter_AdmitUnderCeiling(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	l := New(Config{Ceiling: 3, Window: time.Minute}, clk)

	for i := 0; i < 3; i++ {
		if err := l.Admit("key-a"); err != nil {
			t.Fatalf("Admit() #%d error = %v", i+1, err)
		}
	}

	if got := l.Pending("key-a"); got != 3 {
		t.Errorf("Pending() = %d, want 3", got)
	}
}

func TestLimiter_RejectAtCeiling(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	l := New(Config{Ceiling: 2, Window: time.Minute}, clk)

	if err := l.Admit("key-a"); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	clk.Advance(10 * time.Second)
	if err := l.Admit("key-a"); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}

	err := l.Admit("key-a")
	var rateErr *RateExceededError
	if !errors.As(err, &rateErr) {
		t.Fatalf("Admit() at ceiling error = %v, want *RateExceededError", err)
	}
	if rateErr.Key != "key-a" {
		t.Errorf("Key = %q, want key-a", rateErr.Key)
	}
	// Oldest hit was 10s ago in a 60s window.
	if rateErr.RetryAfter != 50*time.Second {
		t.Errorf("RetryAfter = %v, want 50s", rateErr.RetryAfter)
	}
}

func TestLimiter_RejectionConsumesNoBudget(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	l := New(Config{Ceiling: 2, Window: time.Minute}, clk)

	l.Admit("key-a") //nolint:errcheck
	l.Admit("key-a") //nolint:errcheck

	// Hammer the full key: none of these should extend the window.
	for i := 0; i < 10; i++ {
		if err := l.Admit("key-a"); err == nil {
			t.Fatal("Admit() over ceiling should fail")
		}
	}

	if got := l.Pending("key-a"); got != 2 {
		t.Errorf("Pending() after rejections = %d, want 2", got)
	}

	// The original admissions age out on schedule despite the rejections.
	clk.Advance(time.Minute + time.Second)
	if err := l.Admit("key-a"); err != nil {
		t.Errorf("Admit() after window error = %v", err)
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	l := New(Config{Ceiling: 2, Window: time.Minute}, clk)

	l.Admit("key-a") //nolint:errcheck
	clk.Advance(30 * time.Second)
	l.Admit("key-a") //nolint:errcheck

	if err := l.Admit("key-a"); err == nil {
		t.Fatal("Admit() at ceiling should fail")
	}

	// 31 more seconds: the first hit leaves the window, freeing one slot.
	clk.Advance(31 * time.Second)
	if err := l.Admit("key-a"); err != nil {
		t.Fatalf("Admit() after partial slide error = %v", err)
	}
	if err := l.Admit("key-a"); err == nil {
		t.Error("Admit() should fail again, second hit still in window")
	}
}

func TestLimiter_PerKeyIsolation(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	l := New(Config{Ceiling: 1, Window: time.Minute}, clk)

	if err := l.Admit("key-a"); err != nil {
		t.Fatalf("Admit(key-a) error = %v", err)
	}
	if err := l.Admit("key-a"); err == nil {
		t.Fatal("Admit(key-a) should be at ceiling")
	}

	// An unrelated key has its own budget.
	if err := l.Admit("key-b"); err != nil {
		t.Errorf("Admit(key-b) error = %v", err)
	}
}

func TestLimiter_Defaults(t *testing.T) {
	l := New(Config{}, nil)
	if l.ceiling != 10 {
		t.Errorf("default ceiling = %d, want 10", l.ceiling)
	}
	if l.window != time.Minute {
		t.Errorf("default window = %v, want 1m", l.window)
	}
}

func TestLimiter_PurgeIdle(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	l := New(Config{Ceiling: 5, Window: time.Minute}, clk)

	l.Admit("old-1") //nolint:errcheck
	l.Admit("old-2") //nolint:errcheck
	clk.Advance(2 * time.Minute)
	l.Admit("fresh") //nolint:errcheck

	if got := l.KeyCount(); got != 3 {
		t.Fatalf("KeyCount() before purge = %d, want 3", got)
	}

	if dropped := l.PurgeIdle(); dropped != 2 {
		t.Errorf("PurgeIdle() = %d, want 2", dropped)
	}
	if got := l.KeyCount(); got != 1 {
		t.Errorf("KeyCount() after purge = %d, want 1", got)
	}
	if got := l.Pending("fresh"); got != 1 {
		t.Errorf("Pending(fresh) = %d, want 1", got)
	}
}

func TestLimiter_ConcurrentAdmit(t *testing.T) {
	l := New(Config{Ceiling: 50, Window: time.Minute}, nil)

	const goroutines = 200
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Admit("hot-key"); err == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 50 {
		t.Errorf("admitted = %d, want exactly 50", got)
	}
	if got := l.Pending("hot-key"); got != 50 {
		t.Errorf("Pending() = %d, want 50", got)
	}
}
