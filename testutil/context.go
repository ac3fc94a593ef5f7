package testutil

import (
	"context"
	"testing"
	"time"
)

// TestContext returns a context that is canceled when the test ends, with
// a generous deadline so a hung fake server fails the test instead of
// stalling the run.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout returns a context with a timeout.
// The context is also canceled when the test ends.
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)

	return ctx
}

// Eventually polls cond until it reports true or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
