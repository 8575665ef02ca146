package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"sentra/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSQLiteEventStorage_DeleteEventsBefore tests event ageing by timestamp and collection time
func TestSQLiteEventStorage_DeleteEventsBefore(t *testing.T) {
	store := newTestEventStorage(t, 0)
	ctx := context.Background()
	require.NoError(t, store.SaveEvents(ctx, sampleEvents()))

	n, err := store.DeleteEventsBefore(ctx, time.Date(2025, 12, 9, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the 09:59:59 event is older")

	count, err := store.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(sampleEvents())-1), count)

	// the unparseable event ages by collected_at
	n, err = store.DeleteEventsBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(len(sampleEvents())-1), n)
}

// TestSQLiteThreatStorage_DeleteThreatsBefore tests threat history ageing by record time
func TestSQLiteThreatStorage_DeleteThreatsBefore(t *testing.T) {
	store := newTestThreatStorage(t)
	ctx := context.Background()
	require.NoError(t, store.SaveThreats(ctx, []core.ThreatDetection{
		{Time: "2020-01-01T00:00:00Z", Technique: "T1110", Name: "Brute Force", Severity: "High"},
		{Time: "2025-12-09T10:00:00Z", Technique: "T1136", Name: "Create Account", Severity: "Medium"},
	}))

	n, err := store.DeleteThreatsBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "event time does not matter, only when it was recorded")

	n, err = store.DeleteThreatsBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

// TestSQLiteAnomalyStorage_DeleteRunsBefore tests run removal also drops cached runs
func TestSQLiteAnomalyStorage_DeleteRunsBefore(t *testing.T) {
	store := newTestAnomalyStorage(t)
	ctx := context.Background()
	seedRuns(t, store)

	cached, err := store.LoadByRunKey(ctx, "2025-12-09-10")
	require.NoError(t, err)
	require.Len(t, cached, 2)

	n, err := store.DeleteRunsBefore(ctx, time.Date(2025, 12, 9, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	gone, err := store.LoadByRunKey(ctx, "2025-12-09-10")
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := store.LoadByRunKey(ctx, "2025-12-09-12")
	require.NoError(t, err)
	assert.Len(t, kept, 2)
}

// TestRetentionManager_Cleanup tests cutoffs, disabled policies and error isolation
func TestRetentionManager_Cleanup(t *testing.T) {
	now := time.Date(2025, 12, 9, 12, 0, 0, 0, time.UTC)
	var eventCutoff time.Time
	threatCalled := false

	rm := NewRetentionManager([]RetentionPolicy{
		{Name: "events", Days: 30, Delete: func(_ context.Context, cutoff time.Time) (int64, error) {
			eventCutoff = cutoff
			return 5, nil
		}},
		{Name: "threats", Days: 0, Delete: func(context.Context, time.Time) (int64, error) {
			threatCalled = true
			return 0, nil
		}},
		{Name: "anomaly_runs", Days: 90, Delete: func(context.Context, time.Time) (int64, error) {
			return 0, errors.New("database is locked")
		}},
	}, 0, nil)
	rm.now = func() time.Time { return now }

	deleted, err := rm.Cleanup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anomaly_runs")
	assert.Equal(t, map[string]int64{"events": 5}, deleted)
	assert.Equal(t, now.AddDate(0, 0, -30), eventCutoff)
	assert.False(t, threatCalled, "zero days disables the policy")
	assert.Equal(t, DefaultRetentionInterval, rm.checkInterval)
}

// TestRetentionManager_StartStop tests the initial pass, periodic passes and shutdown
func TestRetentionManager_StartStop(t *testing.T) {
	var passes atomic.Int32
	rm := NewRetentionManager([]RetentionPolicy{
		{Name: "events", Days: 1, Delete: func(context.Context, time.Time) (int64, error) {
			passes.Add(1)
			return 0, nil
		}},
	}, 5*time.Millisecond, nil)

	rm.Start(context.Background())
	rm.Start(context.Background())
	require.Eventually(t, func() bool { return passes.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	rm.Stop()
	after := passes.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, passes.Load(), "no passes after Stop")

	rm.Stop()
}

// TestStandardPolicies tests nil stores are skipped
func TestStandardPolicies(t *testing.T) {
	events := newTestEventStorage(t, 0)
	policies := StandardPolicies(events, nil, nil, 30, 90, 90)
	require.Len(t, policies, 1)
	assert.Equal(t, "events", policies[0].Name)
	assert.Equal(t, 30, policies[0].Days)
}
