package ml

import (
	"time"

	"sentra/core"
	"sentra/metrics"

	"go.uber.org/zap"
)

// PipelineConfig holds configuration for the baseline anomaly pipeline
type PipelineConfig struct {
	BaselineDays    int  // History used as the normal baseline (default: 7)
	ClampNormalized bool // Clamp normalized target values into [0, 1]
	Features        FeatureBuilderConfig
	Scorer          ScorerConfig
	Logger          *zap.SugaredLogger
}

// DefaultPipelineConfig returns the standard pipeline settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BaselineDays:    7,
		ClampNormalized: true,
		Features:        DefaultFeatureBuilderConfig(),
	}
}

// Pipeline runs split, feature building, normalization and scoring.
type Pipeline struct {
	cfg     PipelineConfig
	builder *FeatureBuilder
	scorer  *Scorer
	logger  *zap.SugaredLogger
}

// PipelineResult is everything one scoring run produced.
type PipelineResult struct {
	Now            time.Time            `json:"now"`
	Window         time.Duration        `json:"window"`
	BaselineEvents int                  `json:"baseline_events"`
	TargetEvents   int                  `json:"target_events"`
	BaselineRows   []core.FeatureRow    `json:"baseline_rows"` // raw, un-normalized
	TargetRows     []core.FeatureRow    `json:"target_rows"`   // raw, un-normalized
	BaselineMean   []float64            `json:"baseline_mean"` // raw feature means of baseline rows
	Scaler         *MinMaxScaler        `json:"scaler"`
	Scored         []core.ScoredAnomaly `json:"scored"`
	Outcome        Outcome              `json:"outcome"`
	Fallback       bool                 `json:"fallback"`
	AnomalyCount   int                  `json:"anomaly_count"`
}

// TargetRow returns the raw target row for a window key.
func (r *PipelineResult) TargetRow(key string) (core.FeatureRow, bool) {
	for _, row := range r.TargetRows {
		if row.Key == key {
			return row, true
		}
	}
	return core.FeatureRow{}, false
}

// NewPipeline creates a pipeline
func NewPipeline(config PipelineConfig) *Pipeline {
	if config.BaselineDays <= 0 {
		config.BaselineDays = 7
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.Scorer.Logger == nil {
		config.Scorer.Logger = config.Logger
	}
	return &Pipeline{
		cfg:     config,
		builder: NewFeatureBuilder(config.Features),
		scorer:  NewScorer(&config.Scorer),
		logger:  config.Logger,
	}
}

// Builder returns the pipeline's feature builder.
func (p *Pipeline) Builder() *FeatureBuilder {
	return p.builder
}

// Run scores the user-hour windows of the last targetWindow against the
// preceding baseline days of history.
func (p *Pipeline) Run(history []core.EventRecord, now time.Time, targetWindow time.Duration) *PipelineResult {
	label := targetWindow.String()
	start := time.Now()

	w := Split(history, now, p.cfg.BaselineDays, targetWindow, p.builder.Location())
	baselineRows := p.builder.BuildPerUserHour(w.Baseline, now, time.Duration(p.cfg.BaselineDays)*24*time.Hour)
	targetRows := p.builder.BuildPerUserHour(w.Target, now, targetWindow)
	metrics.PipelineDuration.WithLabelValues("features").Observe(time.Since(start).Seconds())

	scaler := FitMinMax(baselineRows, p.cfg.ClampNormalized)
	normBaseline := scaler.Transform(baselineRows)
	normTarget := scaler.Transform(targetRows)

	scoreStart := time.Now()
	scored := p.scorer.Score(normBaseline, normTarget)
	metrics.PipelineDuration.WithLabelValues("score").Observe(time.Since(scoreStart).Seconds())

	res := &PipelineResult{
		Now:            now,
		Window:         targetWindow,
		BaselineEvents: len(w.Baseline),
		TargetEvents:   len(w.Target),
		BaselineRows:   baselineRows,
		TargetRows:     targetRows,
		BaselineMean:   FeatureMeans(baselineRows),
		Scaler:         scaler,
		Scored:         scored.Anomalies,
		Outcome:        scored.Outcome,
		Fallback:       scored.Fallback,
		AnomalyCount:   scored.AnomalyCount(),
	}

	metrics.AnomalyRunsTotal.WithLabelValues(label, string(res.Outcome)).Inc()
	metrics.AnomaliesFlagged.WithLabelValues(label).Add(float64(res.AnomalyCount))
	if res.Fallback {
		metrics.FallbackFlags.Inc()
	}

	p.logger.Infow("Anomaly pipeline run complete",
		"window", label,
		"baseline_events", res.BaselineEvents,
		"target_events", res.TargetEvents,
		"baseline_rows", len(baselineRows),
		"target_rows", len(targetRows),
		"outcome", res.Outcome,
		"anomalies", res.AnomalyCount,
		"duration", time.Since(start))
	return res
}
