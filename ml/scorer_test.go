package ml

import (
	"fmt"
	"testing"

	"sentra/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planeFeatureRows(n int) []core.FeatureRow {
	vecs := planeBaseline(n)
	rows := make([]core.FeatureRow, n)
	for i, v := range vecs {
		rows[i] = core.FeatureRow{Key: fmt.Sprintf("base-%02d", i), Features: v}
	}
	return rows
}

func offPlaneRow(key string, f4 float64) core.FeatureRow {
	v := planeRow(1, 1, 1)
	v[4] = f4
	return core.FeatureRow{Key: key, Features: v}
}

// TestNewScorer_Defaults tests zero-valued configuration falls back to defaults
func TestNewScorer_Defaults(t *testing.T) {
	cfg := NewScorer(nil).Config()
	assert.Equal(t, 10, cfg.MinBaselineRows)
	assert.Equal(t, 3, cfg.Rank)
	assert.Equal(t, 2.0, cfg.ZThreshold)
	assert.Equal(t, 3, cfg.FallbackMinRows)
	assert.NotNil(t, cfg.Logger)
}

// TestScorer_Score_FlagsOutlier tests a single off-subspace window crosses z >= 2
func TestScorer_Score_FlagsOutlier(t *testing.T) {
	target := make([]core.FeatureRow, 0, 10)
	for j := 0; j < 9; j++ {
		target = append(target, core.FeatureRow{
			Key:      fmt.Sprintf("normal-%d", j),
			Features: planeRow(float64(j%4), float64(j%3), float64((j+1)%2)),
		})
	}
	target = append(target, offPlaneRow("outlier", 10))

	res := NewScorer(nil).Score(planeFeatureRows(20), target)

	require.Equal(t, OutcomeScored, res.Outcome)
	require.Len(t, res.Anomalies, 10)
	assert.Equal(t, "outlier", res.Anomalies[0].Key)
	assert.InDelta(t, 8.0, res.Anomalies[0].Score, 1e-6)
	assert.True(t, res.Anomalies[0].IsAnomaly)
	assert.Equal(t, 1, res.AnomalyCount())
	assert.False(t, res.Fallback)
	assert.InDelta(t, 0.8, res.Mean, 1e-6)
	assert.InDelta(t, 2.4, res.StdDev, 1e-6)

	for i := 1; i < len(res.Anomalies); i++ {
		assert.GreaterOrEqual(t, res.Anomalies[i-1].Score, res.Anomalies[i].Score)
		assert.False(t, res.Anomalies[i].IsAnomaly)
	}
}

// TestScorer_Score_Fallback tests the top row is flagged when nothing crosses the threshold
func TestScorer_Score_Fallback(t *testing.T) {
	target := []core.FeatureRow{
		{Key: "a", Features: planeRow(1, 2, 0)},
		offPlaneRow("b", 4),
		offPlaneRow("c", 6),
	}

	res := NewScorer(nil).Score(planeFeatureRows(20), target)

	require.Len(t, res.Anomalies, 3)
	assert.True(t, res.Fallback)
	assert.Equal(t, 1, res.AnomalyCount())
	assert.Equal(t, "c", res.Anomalies[0].Key)
	assert.True(t, res.Anomalies[0].IsAnomaly)
	assert.InDelta(t, 4.0, res.Anomalies[0].Score, 1e-6)
}

// TestScorer_Score_NoFallbackBelowMinRows tests two rows never trigger the fallback
func TestScorer_Score_NoFallbackBelowMinRows(t *testing.T) {
	target := []core.FeatureRow{
		{Key: "a", Features: planeRow(1, 2, 0)},
		offPlaneRow("b", 4),
	}

	res := NewScorer(nil).Score(planeFeatureRows(20), target)

	assert.False(t, res.Fallback)
	assert.Equal(t, 0, res.AnomalyCount())
	assert.Equal(t, "b", res.Anomalies[0].Key)
}

// TestScorer_Score_InsufficientBaseline tests small baselines yield zero scores
func TestScorer_Score_InsufficientBaseline(t *testing.T) {
	target := []core.FeatureRow{offPlaneRow("x", 10), offPlaneRow("y", 3)}

	res := NewScorer(nil).Score(planeFeatureRows(5), target)

	assert.Equal(t, OutcomeInsufficientBaseline, res.Outcome)
	require.Len(t, res.Anomalies, 2)
	for _, a := range res.Anomalies {
		assert.Equal(t, 0.0, a.Score)
		assert.False(t, a.IsAnomaly)
	}
}

// TestScorer_Score_EmptyTarget tests an empty target yields an empty result
func TestScorer_Score_EmptyTarget(t *testing.T) {
	res := NewScorer(nil).Score(planeFeatureRows(20), nil)
	assert.Equal(t, OutcomeEmptyTarget, res.Outcome)
	assert.NotNil(t, res.Anomalies)
	assert.Empty(t, res.Anomalies)
}

// TestScorer_Score_CustomThreshold tests threshold configuration is honored
func TestScorer_Score_CustomThreshold(t *testing.T) {
	target := make([]core.FeatureRow, 0, 10)
	for j := 0; j < 9; j++ {
		target = append(target, core.FeatureRow{Key: fmt.Sprintf("n%d", j), Features: planeRow(0, 1, 0)})
	}
	target = append(target, offPlaneRow("outlier", 10))

	// z of the outlier is exactly 3
	res := NewScorer(&ScorerConfig{ZThreshold: 3.5}).Score(planeFeatureRows(20), target)
	assert.True(t, res.Fallback, "nothing crosses 3.5 so the top row is flagged by fallback")
	assert.Equal(t, "outlier", res.Anomalies[0].Key)
}
