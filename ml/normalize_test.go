package ml

import (
	"testing"

	"sentra/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(key string, f ...float64) core.FeatureRow {
	return core.FeatureRow{Key: key, Features: f}
}

// TestMinMaxScaler_ConstantFeature tests that a constant baseline feature maps to 0
func TestMinMaxScaler_ConstantFeature(t *testing.T) {
	baseline := make([]core.FeatureRow, 15)
	for i := range baseline {
		baseline[i] = row("b", 5, float64(i), 0, 0, 0, 0)
	}
	target := []core.FeatureRow{row("t", 5, 7, 0, 0, 0, 0), row("t2", 9, 7, 0, 0, 0, 0)}

	s := FitMinMax(baseline, true)
	nb := s.Transform(baseline)
	nt := s.Transform(target)

	for _, r := range append(nb, nt...) {
		assert.Equal(t, 0.0, r.Features[0])
	}
	assert.InDelta(t, 0.5, nt[0].Features[1], 1e-12)
}

// TestMinMaxScaler_BaselineOnly tests that target values never influence the statistics
func TestMinMaxScaler_BaselineOnly(t *testing.T) {
	baseline := []core.FeatureRow{row("a", 0, 10), row("b", 10, 20)}
	s := FitMinMax(baseline, false)

	out := s.Transform([]core.FeatureRow{row("t", 20, 15)})
	assert.Equal(t, []float64{2, 0.5}, out[0].Features, "unclamped values extend beyond [0,1]")
	assert.Equal(t, []float64{0, 10}, s.Min)
	assert.Equal(t, []float64{10, 20}, s.Max)
}

// TestMinMaxScaler_Clamp tests every normalized value lands in [0,1]
func TestMinMaxScaler_Clamp(t *testing.T) {
	baseline := []core.FeatureRow{row("a", 0, 10, 3), row("b", 10, 20, 3), row("c", 4, 12, 3)}
	s := FitMinMax(baseline, true)

	rows := append(s.Transform(baseline), s.Transform([]core.FeatureRow{row("t", 20, -5, 100)})...)
	for _, r := range rows {
		for _, v := range r.Features {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

// TestMinMaxScaler_DoesNotMutate tests inputs are left untouched
func TestMinMaxScaler_DoesNotMutate(t *testing.T) {
	baseline := []core.FeatureRow{row("a", 0), row("b", 10)}
	s := FitMinMax(baseline, true)
	_ = s.Transform(baseline)
	assert.Equal(t, []float64{10}, baseline[1].Features)
}

// TestMinMaxScaler_EmptyBaseline tests the identity fallback
func TestMinMaxScaler_EmptyBaseline(t *testing.T) {
	s := FitMinMax(nil, true)
	require.False(t, s.Fitted())
	out := s.Transform([]core.FeatureRow{row("t", 3, 4)})
	assert.Equal(t, []float64{3, 4}, out[0].Features)
}
