//go:build integration

package mqtt

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Reconnection-adjacent behaviour that needs a live broker at
// 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...
//
// Timing-sensitive; prefer -count=1 in CI.

// TestIntegration_SubscriptionTracking verifies the tracked set that
// drives restore-on-reconnect stays in sync through subscribe and
// unsubscribe. Forcing an actual broker drop needs external control,
// so only the bookkeeping is exercised here.
func TestIntegration_SubscriptionTracking(t *testing.T) {
	client := connectTestClient(t, "accesscore-int-sub-track")

	topics := []string{
		"accesscore/int/identity/created",
		"accesscore/int/identity/updated",
		"accesscore/int/identity/deactivated",
	}
	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}

	if got := client.SubscriptionCount(); got != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", got, len(topics))
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if got := client.SubscriptionCount(); got != len(topics)-1 {
		t.Errorf("SubscriptionCount() after unsubscribe = %d, want %d", got, len(topics)-1)
	}
	if client.HasSubscription(topics[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", topics[0])
	}
}

// TestIntegration_CallbacksRegistered verifies lifecycle hooks can be
// set and cleared on a live client without racing delivery.
func TestIntegration_CallbacksRegistered(t *testing.T) {
	client := connectTestClient(t, "accesscore-int-callbacks")

	var connects, disconnects int32
	client.SetOnConnect(func() { atomic.AddInt32(&connects, 1) })
	client.SetOnDisconnect(func(err error) { atomic.AddInt32(&disconnects, 1) })

	client.SetOnConnect(nil)
	client.SetOnDisconnect(nil)
}

// TestIntegration_PanicRecovery verifies a panicking handler is
// contained and logged instead of killing the delivery goroutine.
func TestIntegration_PanicRecovery(t *testing.T) {
	client := connectTestClient(t, "accesscore-int-panic")

	logger := &mockLogger{}
	client.SetLogger(logger)

	topic := "accesscore/int/identity/panic"
	delivered := make(chan struct{}, 1)

	err := client.Subscribe(topic, 1, func(string, []byte) error {
		delivered <- struct{}{}
		panic("malformed invalidation payload")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := client.PublishString(topic, "x", 1, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}

	select {
	case <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for delivery")
	}

	// Give the deferred recover a moment to log.
	time.Sleep(100 * time.Millisecond)
	if logger.errorCount() == 0 {
		t.Error("recovered panic was not logged")
	}
}

// TestIntegration_LoggerSet verifies the logger can be swapped at
// runtime.
func TestIntegration_LoggerSet(t *testing.T) {
	client := connectTestClient(t, "accesscore-int-logger")

	client.SetLogger(&mockLogger{})
	if client.currentLogger() == nil {
		t.Error("currentLogger() = nil after SetLogger()")
	}

	client.SetLogger(nil)
	if client.currentLogger() != nil {
		t.Error("currentLogger() should be nil after SetLogger(nil)")
	}
}

// mockLogger records log calls for assertions.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *mockLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}
