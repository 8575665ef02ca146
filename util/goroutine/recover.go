package goroutine

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"sentra/metrics"

	"go.uber.org/zap"
)

const (
	// StackTraceBufferSize is the buffer size for stack trace collection
	StackTraceBufferSize = 4096
)

// Recover recovers from panics in goroutines and logs them.
// If logger is nil, falls back to stderr so the panic is still recorded.
func Recover(name string, logger *zap.SugaredLogger) {
	if r := recover(); r != nil {
		buf := make([]byte, StackTraceBufferSize)
		n := runtime.Stack(buf, false)

		metrics.GoroutinePanics.WithLabelValues(name).Inc()

		if logger != nil {
			logger.Errorw("Goroutine panic recovered",
				"goroutine", name,
				"panic", r,
				"stack", string(buf[:n]))
		} else {
			fmt.Fprintf(os.Stderr, "PANIC in goroutine %s (no logger): %v\n%s\n",
				name, r, string(buf[:n]))
		}
	}
}

// Go runs fn in a new goroutine guarded by Recover. The returned channel is
// closed once fn returns or panics.
func Go(name string, logger *zap.SugaredLogger, fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer Recover(name, logger)
		fn()
	}()
	return done
}

// RunEvery calls fn every interval until ctx is canceled. A panic inside one
// tick is recovered and does not stop the loop. Returns immediately when
// interval is not positive.
func RunEvery(ctx context.Context, name string, interval time.Duration, logger *zap.SugaredLogger, fn func(ctx context.Context) error) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, name, logger, fn)
		}
	}
}

func runOnce(ctx context.Context, name string, logger *zap.SugaredLogger, fn func(ctx context.Context) error) {
	status := "panic"
	defer func() {
		metrics.ScheduledRuns.WithLabelValues(name, status).Inc()
	}()
	defer Recover(name, logger)

	if err := fn(ctx); err != nil {
		status = "error"
		logger.Warnw("Scheduled task failed", "task", name, "error", err)
		return
	}
	status = "ok"
}
