package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentra_events_ingested_total",
			Help: "Total number of events loaded from event sources",
		},
		[]string{"source"},
	)

	EventsDroppedNoise = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentra_events_dropped_noise_total",
			Help: "Total number of events dropped by the noise preprocessor",
		},
	)

	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentra_detections_total",
			Help: "Total number of threat detections produced by the rule engine",
		},
		[]string{"technique", "severity"},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentra_persistence_failures_total",
			Help: "Total number of failed writes to the local store",
		},
		[]string{"store"},
	)

	GoroutinePanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentra_goroutine_panics_total",
			Help: "Total number of panics recovered in background goroutines",
		},
		[]string{"goroutine"},
	)

	ScheduledRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentra_scheduled_runs_total",
			Help: "Total number of background task executions",
		},
		[]string{"task", "status"},
	)
)
