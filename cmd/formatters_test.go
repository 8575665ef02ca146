package cmd

import (
	"bytes"
	"testing"

	"sentra/core"
	"sentra/ml"
	"sentra/service"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in       string
		n        int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
		{"ümlautümlaut", 8, "ümlau..."},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, truncate(tt.in, tt.n))
		})
	}
}

// TestRenderRunTable_Comparison tests both runs and the status summary are printed
func TestRenderRunTable_Comparison(t *testing.T) {
	color.NoColor = true

	table := &service.RunTable{
		RunA: "2025-12-09-10",
		RunB: "2025-12-09-11",
		RowsA: []service.RunRow{
			{RunRecord: core.RunRecord{WindowKey: "alice | 12-09 09:00", Score: 1.5, IsAnomaly: true}, Status: ml.StatusResolved},
		},
		RowsB: []service.RunRow{
			{RunRecord: core.RunRecord{WindowKey: "dave | 12-09 10:00", Score: 2.25, IsAnomaly: true}, Status: ml.StatusNew},
		},
		Comparison: &ml.RunComparison{
			New:      []string{"dave | 12-09 10:00"},
			Resolved: []string{"alice | 12-09 09:00"},
		},
	}

	var buf bytes.Buffer
	renderRunTable(&buf, table)
	out := buf.String()

	assert.Contains(t, out, "RUN 2025-12-09-10 (1 windows)")
	assert.Contains(t, out, "RUN 2025-12-09-11 (1 windows)")
	assert.Contains(t, out, "Resolved")
	assert.Contains(t, out, "2.2500")
	assert.Contains(t, out, "Repeated:")
	assert.Contains(t, out, "New:")
	assert.Contains(t, out, "dave | 12-09 10:00")
}

// TestRenderScoreRun tests the outcome line and reasons column
func TestRenderScoreRun(t *testing.T) {
	color.NoColor = true
	quiet = false

	run := &service.ScoreRun{
		RunKey: "2025-12-09-12",
		Result: &ml.PipelineResult{
			Outcome:  ml.OutcomeInsufficientBaseline,
			Fallback: true,
			Scored: []core.ScoredAnomaly{
				{Key: "mallory | 12-09 11:00", Score: 0.9, IsAnomaly: true},
			},
			AnomalyCount: 1,
		},
		Records:  []core.RunRecord{{WindowKey: "mallory | 12-09 11:00"}},
		Inserted: 1,
		Reasons:  map[string][]string{"mallory | 12-09 11:00": {"Failed logins 30 vs 0.5"}},
	}

	var buf bytes.Buffer
	renderScoreRun(&buf, run)
	out := buf.String()

	assert.Contains(t, out, "Run 2025-12-09-12")
	assert.Contains(t, out, "insufficient_baseline (top-score fallback)")
	assert.Contains(t, out, "Failed logins 30 vs 0.5")
	assert.Contains(t, out, "Recorded 1 of 1 windows")
}

func TestFormatKeys(t *testing.T) {
	assert.Equal(t, "-", formatKeys(nil))
	assert.Equal(t, "a, b", formatKeys([]string{"a", "b"}))
	assert.Equal(t, "1 0 2.5 0 0 0", formatFeatures([core.FeatureCount]float64{1, 0, 2.5}))
}
