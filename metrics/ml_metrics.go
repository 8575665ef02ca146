package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Anomaly pipeline metrics.
var (
	// AnomalyRunsTotal counts scoring runs.
	// Labels:
	//   - window: "live" or "dashboard"
	//   - result: "scored", "insufficient_baseline" or "fit_failed"
	AnomalyRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Subsystem: "ml",
			Name:      "runs_total",
			Help:      "Total number of anomaly scoring runs",
		},
		[]string{"window", "result"},
	)

	// AnomaliesFlagged counts target windows flagged as anomalous.
	AnomaliesFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Subsystem: "ml",
			Name:      "anomalies_flagged_total",
			Help:      "Total number of user-hour windows flagged as anomalous",
		},
		[]string{"window"},
	)

	// FallbackFlags counts runs where no window crossed the z threshold and
	// the top-scoring window was flagged instead.
	FallbackFlags = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Subsystem: "ml",
			Name:      "fallback_flags_total",
			Help:      "Total number of runs resolved by flagging the top-scoring window",
		},
	)

	// PipelineDuration measures each pipeline stage.
	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentra",
			Subsystem: "ml",
			Name:      "pipeline_duration_seconds",
			Help:      "Time spent in anomaly pipeline stages",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"stage"},
	)
)
