package storage

import (
	"context"
	"testing"
	"time"

	"sentra/core"
	"sentra/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnomalyStorage(t *testing.T) *SQLiteAnomalyStorage {
	store, err := NewSQLiteAnomalyStorage(newTestSQLite(t), 8, nil)
	require.NoError(t, err)
	return store
}

func record(runKey, window string, score float64, anomalous bool) core.RunRecord {
	return core.RunRecord{
		RunKey:    runKey,
		WindowKey: window,
		Score:     score,
		IsAnomaly: anomalous,
		Features:  [core.FeatureCount]float64{1, 2, 3, 4, 5, 6},
	}
}

// TestSQLiteAnomalyStorage_SaveBatch tests insert-or-ignore on (run key, window key)
func TestSQLiteAnomalyStorage_SaveBatch(t *testing.T) {
	store := newTestAnomalyStorage(t)
	ctx := context.Background()
	created := time.Date(2025, 12, 9, 12, 0, 0, 0, time.UTC)

	batch := []core.RunRecord{
		record("2025-12-09-12", "alice | 12-09 11:00", 3.2, true),
		record("2025-12-09-12", "bob | 12-09 11:00", 0.4, false),
	}
	n, err := store.SaveBatch(ctx, created, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.SaveBatch(ctx, created, append(batch, record("2025-12-09-12", "carol | 12-09 11:00", 0.1, false)))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "existing windows are ignored")

	records, err := store.LoadByRunKey(ctx, "2025-12-09-12")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "alice | 12-09 11:00", records[0].WindowKey)
	assert.True(t, records[0].IsAnomaly)
	assert.Equal(t, [core.FeatureCount]float64{1, 2, 3, 4, 5, 6}, records[0].Features)
	assert.True(t, records[0].CreatedAt.Equal(created))
}

// TestSQLiteAnomalyStorage_SaveBatch_InvalidKeys tests validation before writing
func TestSQLiteAnomalyStorage_SaveBatch_InvalidKeys(t *testing.T) {
	store := newTestAnomalyStorage(t)
	ctx := context.Background()

	_, err := store.SaveBatch(ctx, time.Now(), []core.RunRecord{record("", "w", 1, false)})
	assert.ErrorIs(t, err, ErrInvalidRunKey)

	_, err = store.SaveBatch(ctx, time.Now(), []core.RunRecord{record("2025-12-09-12", " ", 1, false)})
	assert.ErrorIs(t, err, ErrInvalidWindowKey)

	n, err := store.SaveBatch(ctx, time.Now(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// TestSQLiteAnomalyStorage_LoadByRunKey_Cache tests cached runs are invalidated on save
func TestSQLiteAnomalyStorage_LoadByRunKey_Cache(t *testing.T) {
	store := newTestAnomalyStorage(t)
	ctx := context.Background()
	key := "2025-12-09-13"

	_, err := store.SaveBatch(ctx, time.Now(), []core.RunRecord{record(key, "a | 12-09 12:00", 1, false)})
	require.NoError(t, err)

	hits := testutil.ToFloat64(metrics.RunCacheLookups.WithLabelValues("hit"))
	first, err := store.LoadByRunKey(ctx, key)
	require.NoError(t, err)
	first[0].WindowKey = "mutated"

	second, err := store.LoadByRunKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, hits+1, testutil.ToFloat64(metrics.RunCacheLookups.WithLabelValues("hit")))
	assert.Equal(t, "a | 12-09 12:00", second[0].WindowKey, "callers cannot mutate cached runs")

	_, err = store.SaveBatch(ctx, time.Now(), []core.RunRecord{record(key, "b | 12-09 12:00", 2, true)})
	require.NoError(t, err)
	third, err := store.LoadByRunKey(ctx, key)
	require.NoError(t, err)
	assert.Len(t, third, 2)

	_, err = store.LoadByRunKey(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidRunKey)
}

func seedRuns(t *testing.T, store *SQLiteAnomalyStorage) {
	ctx := context.Background()
	runs := []struct {
		key     string
		created time.Time
		records []core.RunRecord
	}{
		{"2025-12-09-10", time.Date(2025, 12, 9, 10, 5, 0, 0, time.UTC), []core.RunRecord{
			record("2025-12-09-10", "a | 12-09 09:00", 2.5, true),
			record("2025-12-09-10", "b | 12-09 09:00", 0.5, false),
		}},
		{"2025-12-09-11", time.Date(2025, 12, 9, 11, 5, 0, 0, time.UTC), []core.RunRecord{
			record("2025-12-09-11", "a | 12-09 10:00", 1.5, false),
		}},
		{"2025-12-09-12", time.Date(2025, 12, 9, 12, 5, 0, 0, time.UTC), []core.RunRecord{
			record("2025-12-09-12", "a | 12-09 11:00", 4.0, true),
			record("2025-12-09-12", "c | 12-09 11:00", 3.0, true),
		}},
	}
	for _, r := range runs {
		_, err := store.SaveBatch(ctx, r.created, r.records)
		require.NoError(t, err)
	}
}

// TestSQLiteAnomalyStorage_RunHistory tests recent records, stats, keys and ranges
func TestSQLiteAnomalyStorage_RunHistory(t *testing.T) {
	store := newTestAnomalyStorage(t)
	ctx := context.Background()
	seedRuns(t, store)

	recent, err := store.LoadRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "a | 12-09 11:00", recent[0].WindowKey)
	assert.Equal(t, "2025-12-09-11", recent[2].RunKey)

	stats, err := store.LoadRunStats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []core.RunStat{
		{RunKey: "2025-12-09-12", AnomalyCount: 2, MaxScore: 4.0},
		{RunKey: "2025-12-09-11", AnomalyCount: 0, MaxScore: 1.5},
		{RunKey: "2025-12-09-10", AnomalyCount: 1, MaxScore: 2.5},
	}, stats)

	keys, err := store.LoadRecentRunKeys(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-12-09-12", "2025-12-09-11"}, keys)

	ranged, err := store.LoadRange(ctx, "2025-12-09-11", "2025-12-09-10")
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	assert.Equal(t, "2025-12-09-11", ranged[0].RunKey)
	assert.Equal(t, "a | 12-09 09:00", ranged[1].WindowKey)

	_, err = store.LoadRunStats(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}
