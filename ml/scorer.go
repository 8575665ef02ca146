package ml

import (
	"math"
	"sort"

	"sentra/core"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Outcome describes how a scoring run resolved.
type Outcome string

const (
	OutcomeScored               Outcome = "scored"
	OutcomeInsufficientBaseline Outcome = "insufficient_baseline"
	OutcomeEmptyTarget          Outcome = "empty_target"
	OutcomeFitFailed            Outcome = "fit_failed"
)

const minStdDev = 1e-6

// ScorerConfig holds configuration for the PCA anomaly scorer
type ScorerConfig struct {
	MinBaselineRows int     // Baseline rows required to trust the model (default: 10)
	Rank            int     // Retained principal components (default: 3)
	ZThreshold      float64 // z-score at or above which a window is flagged (default: 2.0)
	FallbackMinRows int     // Target rows required for top-score fallback (default: 3)
	Logger          *zap.SugaredLogger
}

// Scorer fits a PCA model on normalized baseline rows and scores target rows.
type Scorer struct {
	cfg    ScorerConfig
	logger *zap.SugaredLogger
}

// ScoreResult is the output of one scoring call.
type ScoreResult struct {
	Anomalies []core.ScoredAnomaly `json:"anomalies"`
	Outcome   Outcome              `json:"outcome"`
	Mean      float64              `json:"mean"`
	StdDev    float64              `json:"std_dev"`
	// Fallback is set when the top row was flagged because none crossed the threshold.
	Fallback bool `json:"fallback"`
}

// AnomalyCount returns the number of flagged rows.
func (r *ScoreResult) AnomalyCount() int {
	n := 0
	for _, a := range r.Anomalies {
		if a.IsAnomaly {
			n++
		}
	}
	return n
}

// NewScorer creates a new PCA anomaly scorer
func NewScorer(config *ScorerConfig) *Scorer {
	cfg := ScorerConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.MinBaselineRows == 0 {
		cfg.MinBaselineRows = 10
	}
	if cfg.Rank == 0 {
		cfg.Rank = 3
	}
	if cfg.ZThreshold == 0 {
		cfg.ZThreshold = 2.0
	}
	if cfg.FallbackMinRows == 0 {
		cfg.FallbackMinRows = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Scorer{cfg: cfg, logger: cfg.Logger}
}

// Config returns the effective configuration.
func (s *Scorer) Config() ScorerConfig {
	return s.cfg
}

// Score scores normalized target rows against normalized baseline rows.
// Output is ordered by score, highest first.
func (s *Scorer) Score(baseline, target []core.FeatureRow) *ScoreResult {
	if len(target) == 0 {
		return &ScoreResult{Anomalies: []core.ScoredAnomaly{}, Outcome: OutcomeEmptyTarget}
	}
	if len(baseline) < s.cfg.MinBaselineRows {
		s.logger.Debugw("Baseline too small, scores default to zero",
			"baseline_rows", len(baseline),
			"min_rows", s.cfg.MinBaselineRows)
		return zeroResult(target, OutcomeInsufficientBaseline)
	}

	vectors := make([][]float64, len(baseline))
	for i, r := range baseline {
		vectors[i] = r.Features
	}
	model, err := FitPCA(vectors, s.cfg.Rank)
	if err != nil {
		s.logger.Warnw("PCA fit failed, scores default to zero", "error", err)
		return zeroResult(target, OutcomeFitFailed)
	}

	scored := make([]core.ScoredAnomaly, len(target))
	scores := make([]float64, len(target))
	for i, r := range target {
		v := model.Score(r.Features)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		scored[i] = core.ScoredAnomaly{Key: r.Key, Score: v}
		scores[i] = v
	}

	mean, std := stat.PopMeanStdDev(scores, nil)
	if math.IsNaN(std) || std < minStdDev {
		std = minStdDev
	}

	flagged := 0
	for i := range scored {
		if (scored[i].Score-mean)/std >= s.cfg.ZThreshold {
			scored[i].IsAnomaly = true
			flagged++
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	result := &ScoreResult{Anomalies: scored, Outcome: OutcomeScored, Mean: mean, StdDev: std}
	if flagged == 0 && len(scored) >= s.cfg.FallbackMinRows {
		scored[0].IsAnomaly = true
		result.Fallback = true
	}
	return result
}

func zeroResult(target []core.FeatureRow, outcome Outcome) *ScoreResult {
	out := make([]core.ScoredAnomaly, len(target))
	for i, r := range target {
		out[i] = core.ScoredAnomaly{Key: r.Key}
	}
	return &ScoreResult{Anomalies: out, Outcome: outcome}
}
