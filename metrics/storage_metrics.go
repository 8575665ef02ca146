package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SQLite connection pool metrics, labelled by pool ("read" or "write").
var (
	SQLitePoolOpenConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sentra",
			Subsystem: "sqlite_pool",
			Name:      "open_connections",
			Help:      "Number of established connections",
		},
		[]string{"pool"},
	)

	SQLitePoolInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sentra",
			Subsystem: "sqlite_pool",
			Name:      "in_use",
			Help:      "Number of connections currently in use",
		},
		[]string{"pool"},
	)

	SQLitePoolIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sentra",
			Subsystem: "sqlite_pool",
			Name:      "idle",
			Help:      "Number of idle connections",
		},
		[]string{"pool"},
	)

	SQLitePoolMaxOpenConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sentra",
			Subsystem: "sqlite_pool",
			Name:      "max_open_connections",
			Help:      "Configured maximum open connections",
		},
		[]string{"pool"},
	)

	SQLitePoolMaxIdleClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Subsystem: "sqlite_pool",
			Name:      "max_idle_closed_total",
			Help:      "Connections closed due to SetMaxIdleConns",
		},
		[]string{"pool"},
	)

	SQLitePoolWaitCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Subsystem: "sqlite_pool",
			Name:      "wait_count_total",
			Help:      "Total number of connections waited for",
		},
		[]string{"pool"},
	)

	RunCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Subsystem: "storage",
			Name:      "run_cache_lookups_total",
			Help:      "Run record cache lookups",
		},
		[]string{"result"},
	)
)

// RetentionDeleted counts rows removed by retention cleanup
var RetentionDeleted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sentra_retention_deleted_total",
		Help: "Total number of rows removed by retention cleanup",
	},
	[]string{"store"},
)
