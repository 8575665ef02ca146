package ml

import "sentra/core"

// degenerateRange is the smallest baseline range treated as a varying feature.
const degenerateRange = 1e-6

// MinMaxScaler rescales features with per-feature min/max learned from a
// baseline only.
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
	// Clamp bounds transformed values to [0, 1].
	Clamp bool `json:"clamp"`
}

// FitMinMax learns min/max from baseline rows. An empty baseline yields an
// identity scaler.
func FitMinMax(baseline []core.FeatureRow, clamp bool) *MinMaxScaler {
	s := &MinMaxScaler{Clamp: clamp}
	if len(baseline) == 0 {
		return s
	}

	dims := len(baseline[0].Features)
	s.Min = make([]float64, dims)
	s.Max = make([]float64, dims)
	copy(s.Min, baseline[0].Features)
	copy(s.Max, baseline[0].Features)

	for _, r := range baseline[1:] {
		for j := 0; j < dims && j < len(r.Features); j++ {
			if r.Features[j] < s.Min[j] {
				s.Min[j] = r.Features[j]
			}
			if r.Features[j] > s.Max[j] {
				s.Max[j] = r.Features[j]
			}
		}
	}
	return s
}

// Fitted reports whether the scaler learned any statistics.
func (s *MinMaxScaler) Fitted() bool {
	return len(s.Min) > 0
}

// Transform returns normalized copies of rows; inputs are left untouched.
func (s *MinMaxScaler) Transform(rows []core.FeatureRow) []core.FeatureRow {
	out := make([]core.FeatureRow, len(rows))
	for i, r := range rows {
		out[i] = core.FeatureRow{Key: r.Key, Features: s.TransformVector(r.Features)}
	}
	return out
}

// TransformVector normalizes a single feature vector.
// Constant baseline features map to 0.
func (s *MinMaxScaler) TransformVector(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	if !s.Fitted() {
		return out
	}
	for j := 0; j < len(out) && j < len(s.Min); j++ {
		denom := s.Max[j] - s.Min[j]
		if denom < degenerateRange {
			out[j] = 0
			continue
		}
		v := (out[j] - s.Min[j]) / denom
		if s.Clamp {
			v = clamp01(v)
		}
		out[j] = v
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
