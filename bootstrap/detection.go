package bootstrap

import (
	"time"

	"sentra/config"
	"sentra/core"
	"sentra/detect"
	"sentra/ml"

	"go.uber.org/zap"
)

// DetectionComponents holds the rule engine, noise preprocessor and the
// anomaly pipeline built from configuration.
type DetectionComponents struct {
	Noise        *core.NoiseFilter
	NoiseEnabled bool
	Engine       *detect.Engine
	Pipeline     *ml.Pipeline
}

// InitDetection builds the detection components. Unset keyword and source
// lists fall back to the built-in defaults.
func InitDetection(cfg *config.Config, loc *time.Location, sugar *zap.SugaredLogger) *DetectionComponents {
	noise := core.NewNoiseFilter(core.NoiseFilterConfig{
		SecurityKeywords: cfg.Preprocess.SecurityKeywords,
		NoisySources:     cfg.Preprocess.NoisySources,
	})

	engine := detect.NewEngine(sugar)
	engine.SetLocation(loc)

	pipeline := ml.NewPipeline(ml.PipelineConfig{
		BaselineDays:    cfg.ML.BaselineDays,
		ClampNormalized: cfg.ML.ClampNormalized,
		Features: ml.FeatureBuilderConfig{
			ExcludeUnknownPerUser:     cfg.ML.ExcludeUnknownPerUser,
			ExcludeUnknownPerUserHour: cfg.ML.ExcludeUnknownPerUserHour,
			Location:                  loc,
		},
		Scorer: ml.ScorerConfig{
			MinBaselineRows: cfg.ML.MinBaselineRows,
			Rank:            cfg.ML.Rank,
			ZThreshold:      cfg.ML.ZThreshold,
			FallbackMinRows: cfg.ML.FallbackMinRows,
			Logger:          sugar,
		},
		Logger: sugar,
	})

	if cfg.Preprocess.Enabled {
		sugar.Debug("Noise preprocessor enabled for threat detection")
	}

	return &DetectionComponents{
		Noise:        noise,
		NoiseEnabled: cfg.Preprocess.Enabled,
		Engine:       engine,
		Pipeline:     pipeline,
	}
}
