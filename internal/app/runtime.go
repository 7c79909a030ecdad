package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// TestModeEnv makes binaries exit before touching postgres or redis.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

// InTestMode reports whether the binaries should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(func() {
		if os.Getenv(TestModeEnv) == "1" {
			testMode.Store(true)
		}
	})
	return testMode.Load()
}

// ForceTestMode switches test mode on regardless of the environment.
func ForceTestMode() {
	testModeOnce.Do(func() {})
	testMode.Store(true)
}

// Start prepares a binary run. It returns a context cancelled on SIGINT or
// SIGTERM, and ok=false when the process is in test mode and must return
// without side effects.
func Start(component string) (ctx context.Context, stop context.CancelFunc, ok bool) {
	if InTestMode() {
		slog.Default().Info("test mode detected, skipping startup", slog.String("component", component))
		return context.Background(), func() {}, false
	}
	ctx, stop = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx, stop, true
}
