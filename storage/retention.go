package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sentra/metrics"
	"sentra/util/goroutine"

	"go.uber.org/zap"
)

// DefaultRetentionInterval is how often the retention manager runs
const DefaultRetentionInterval = 24 * time.Hour

// RetentionPolicy removes rows older than Days from one store.
// A policy with Days <= 0 is disabled.
type RetentionPolicy struct {
	Name   string
	Days   int
	Delete func(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionManager handles data retention policies
type RetentionManager struct {
	policies      []RetentionPolicy
	checkInterval time.Duration
	logger        *zap.SugaredLogger
	now           func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   <-chan struct{}
}

// NewRetentionManager creates a new retention manager. A non-positive interval
// uses DefaultRetentionInterval.
func NewRetentionManager(policies []RetentionPolicy, interval time.Duration, logger *zap.SugaredLogger) *RetentionManager {
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RetentionManager{
		policies:      policies,
		checkInterval: interval,
		logger:        logger,
		now:           time.Now,
	}
}

// StandardPolicies builds the event, threat and anomaly-run policies for the
// SQLite stores. Nil stores are skipped.
func StandardPolicies(events *SQLiteEventStorage, threats *SQLiteThreatStorage, anomalies *SQLiteAnomalyStorage, eventDays, threatDays, runDays int) []RetentionPolicy {
	var policies []RetentionPolicy
	if events != nil {
		policies = append(policies, RetentionPolicy{Name: "events", Days: eventDays, Delete: events.DeleteEventsBefore})
	}
	if threats != nil {
		policies = append(policies, RetentionPolicy{Name: "threats", Days: threatDays, Delete: threats.DeleteThreatsBefore})
	}
	if anomalies != nil {
		policies = append(policies, RetentionPolicy{Name: "anomaly_runs", Days: runDays, Delete: anomalies.DeleteRunsBefore})
	}
	return policies
}

// Start runs one cleanup pass immediately and then one per interval until
// Stop is called or ctx is canceled.
func (rm *RetentionManager) Start(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	rm.cancel = cancel
	rm.done = goroutine.Go("retention-manager", rm.logger, func() {
		if _, err := rm.Cleanup(runCtx); err != nil {
			rm.logger.Warnw("Initial retention cleanup failed", "error", err)
		}
		goroutine.RunEvery(runCtx, "retention", rm.checkInterval, rm.logger, func(ctx context.Context) error {
			_, err := rm.Cleanup(ctx)
			return err
		})
	})
}

// Stop stops the retention manager and waits for a running pass to finish
func (rm *RetentionManager) Stop() {
	rm.mu.Lock()
	cancel, done := rm.cancel, rm.done
	rm.cancel, rm.done = nil, nil
	rm.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Cleanup applies every enabled policy once and returns rows deleted per
// policy name. A failing policy does not stop the others; the first error is
// returned.
func (rm *RetentionManager) Cleanup(ctx context.Context) (map[string]int64, error) {
	rm.logger.Info("Starting data retention cleanup")

	deleted := make(map[string]int64, len(rm.policies))
	var firstErr error
	now := rm.now()

	for _, p := range rm.policies {
		if p.Days <= 0 || p.Delete == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		cutoff := now.Add(-time.Duration(p.Days) * 24 * time.Hour)
		n, err := p.Delete(ctx, cutoff)
		if err != nil {
			rm.logger.Errorw("Failed to apply retention policy", "policy", p.Name, "cutoff", cutoff, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("retention policy %s: %w", p.Name, err)
			}
			continue
		}
		deleted[p.Name] = n
		if n > 0 {
			metrics.RetentionDeleted.WithLabelValues(p.Name).Add(float64(n))
		}
	}

	rm.logger.Infow("Data retention cleanup completed", "deleted", deleted)
	return deleted, firstErr
}
