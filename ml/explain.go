package ml

import (
	"fmt"
	"sort"
	"strconv"

	"sentra/core"
)

// NoDeviationReason is reported when no feature exceeds its baseline mean.
const NoDeviationReason = "No strong feature deviation from baseline (might be borderline or score-based)."

// Reason is one feature that sits above its baseline mean.
type Reason struct {
	Feature      string  `json:"feature" yaml:"feature"`
	Value        float64 `json:"value" yaml:"value"`
	BaselineMean float64 `json:"baseline_mean" yaml:"baseline_mean"`
	Delta        float64 `json:"delta" yaml:"delta"`
}

// String renders the reason for display.
func (r Reason) String() string {
	return fmt.Sprintf("%s is higher than baseline (value %s).", r.Feature, strconv.FormatFloat(r.Value, 'f', -1, 64))
}

// FeatureMeans returns the per-feature mean of rows, or nil when empty.
func FeatureMeans(rows []core.FeatureRow) []float64 {
	if len(rows) == 0 {
		return nil
	}
	mean := make([]float64, len(rows[0].Features))
	for _, r := range rows {
		for i := 0; i < len(mean) && i < len(r.Features); i++ {
			mean[i] += r.Features[i]
		}
	}
	for i := range mean {
		mean[i] /= float64(len(rows))
	}
	return mean
}

// Explain returns up to top features of x with the largest positive
// deviation from the baseline mean, largest first.
func Explain(x, baselineMean []float64, top int) []Reason {
	if len(x) != len(baselineMean) {
		return nil
	}
	reasons := make([]Reason, 0, len(x))
	for i, v := range x {
		delta := v - baselineMean[i]
		if delta <= 0 {
			continue
		}
		name := fmt.Sprintf("Feature %d", i)
		if i < len(core.FeatureNames) {
			name = core.FeatureNames[i]
		}
		reasons = append(reasons, Reason{Feature: name, Value: v, BaselineMean: baselineMean[i], Delta: delta})
	}
	sort.SliceStable(reasons, func(i, j int) bool { return reasons[i].Delta > reasons[j].Delta })
	if top > 0 && len(reasons) > top {
		reasons = reasons[:top]
	}
	return reasons
}

// ExplainText renders Explain output, falling back to NoDeviationReason.
func ExplainText(x, baselineMean []float64, top int) []string {
	reasons := Explain(x, baselineMean, top)
	if len(reasons) == 0 {
		return []string{NoDeviationReason}
	}
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = r.String()
	}
	return out
}
