package ml

import (
	"testing"
	"time"

	"sentra/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunKey tests run keys are formatted in UTC at hour granularity
func TestRunKey(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*3600)
	ts := time.Date(2025, 12, 9, 1, 30, 0, 0, zone)
	assert.Equal(t, "2025-12-08-23", RunKey(ts))

	parsed, err := ParseRunKey("2025-12-08-23")
	require.NoError(t, err)
	assert.True(t, parsed.Equal(time.Date(2025, 12, 8, 23, 0, 0, 0, time.UTC)))

	_, err = ParseRunKey("yesterday")
	assert.Error(t, err)
}

// TestBuildRunRecords tests feature snapshots are attached per window
func TestBuildRunRecords(t *testing.T) {
	created := time.Date(2025, 12, 9, 12, 0, 0, 0, time.UTC)
	scored := []core.ScoredAnomaly{
		{Key: "alice | 12-09 11:00", Score: 3.5, IsAnomaly: true},
		{Key: "ghost | 12-09 11:00", Score: 1},
	}
	rows := []core.FeatureRow{{Key: "alice | 12-09 11:00", Features: []float64{1, 2, 3, 4, 5, 6}}}

	recs := BuildRunRecords("2025-12-09-12", created, scored, rows)
	require.Len(t, recs, 1)
	assert.Equal(t, "2025-12-09-12", recs[0].RunKey)
	assert.Equal(t, [core.FeatureCount]float64{1, 2, 3, 4, 5, 6}, recs[0].Features)
	assert.True(t, recs[0].IsAnomaly)
	assert.Equal(t, created, recs[0].CreatedAt)
}

func runRecords(anomalous map[string]bool) []core.RunRecord {
	out := make([]core.RunRecord, 0, len(anomalous))
	for k, v := range anomalous {
		out = append(out, core.RunRecord{WindowKey: k, IsAnomaly: v})
	}
	return out
}

// TestCompareRuns tests the new/resolved/repeated partition
func TestCompareRuns(t *testing.T) {
	a := runRecords(map[string]bool{"x | 12-09 10:00": true, "y | 12-09 10:00": true, "z | 12-09 10:00": false})
	b := runRecords(map[string]bool{"Y | 12-09 10:00": true, "w | 12-09 11:00": true, "z | 12-09 10:00": false})

	c := CompareRuns("run-a", a, "run-b", b)

	assert.Equal(t, []string{"w | 12-09 11:00"}, c.New)
	assert.Equal(t, []string{"x | 12-09 10:00"}, c.Resolved)
	assert.Equal(t, []string{"y | 12-09 10:00"}, c.Repeated)
	assert.Equal(t, len(c.New)+len(c.Resolved)+len(c.Repeated), c.UnionSize())
}

// TestCompareRuns_Disjoint tests the partition covers the union for disjoint runs
func TestCompareRuns_Disjoint(t *testing.T) {
	a := runRecords(map[string]bool{"a": true, "b": true})
	b := runRecords(map[string]bool{"c": true})
	c := CompareRuns("a", a, "b", b)
	assert.Empty(t, c.Repeated)
	assert.Equal(t, 3, c.UnionSize())
	assert.Equal(t, len(c.New)+len(c.Resolved)+len(c.Repeated), c.UnionSize())
}

// TestRunComparison_StatusFor tests per-row statuses for each view
func TestRunComparison_StatusFor(t *testing.T) {
	a := runRecords(map[string]bool{"x": true, "y": true})
	b := runRecords(map[string]bool{"y": true, "w": true})
	c := CompareRuns("a", a, "b", b)

	tests := []struct {
		name string
		view RunView
		rec  core.RunRecord
		want string
	}{
		{"resolved in A", ViewA, core.RunRecord{WindowKey: "x", IsAnomaly: true}, StatusResolved},
		{"repeated in A", ViewA, core.RunRecord{WindowKey: "Y", IsAnomaly: true}, StatusRepeated},
		{"new in B", ViewB, core.RunRecord{WindowKey: "w", IsAnomaly: true}, StatusNew},
		{"repeated in B", ViewB, core.RunRecord{WindowKey: "y", IsAnomaly: true}, StatusRepeated},
		{"not anomalous", ViewA, core.RunRecord{WindowKey: "x"}, StatusNone},
		{"B row viewed as A", ViewA, core.RunRecord{WindowKey: "w", IsAnomaly: true}, StatusNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.StatusFor(tt.view, tt.rec))
		})
	}

	var none *RunComparison
	assert.Equal(t, StatusNone, none.StatusFor(ViewA, core.RunRecord{WindowKey: "x", IsAnomaly: true}))
}

// TestParseWindowKey tests window keys resolve to a user and an hour bucket
func TestParseWindowKey(t *testing.T) {
	now := time.Date(2025, 12, 10, 8, 0, 0, 0, time.UTC)

	user, bucket, ok := ParseWindowKey(`CORP\alice | 12-09 11:00`, now, time.UTC)
	require.True(t, ok)
	assert.Equal(t, `CORP\alice`, user)
	assert.True(t, bucket.Equal(time.Date(2025, 12, 9, 11, 0, 0, 0, time.UTC)))

	_, bucket, ok = ParseWindowKey("bob | 12-31 23:00", time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC), time.UTC)
	require.True(t, ok)
	assert.Equal(t, 2025, bucket.Year(), "buckets in the future roll back a year")

	_, bucket, ok = ParseWindowKey("bob | 2024-03-01 05:00", now, time.UTC)
	require.True(t, ok)
	assert.Equal(t, 2024, bucket.Year())

	for _, bad := range []string{"no separator", "alice | garbage", " | 12-09 11:00", "alice | "} {
		_, _, ok := ParseWindowKey(bad, now, time.UTC)
		assert.False(t, ok, bad)
	}
}
