package bootstrap

import (
	"fmt"
	"os"
	"time"

	"sentra/config"
	"sentra/storage"

	"go.uber.org/zap"
)

// StorageComponents holds all storage-related components.
type StorageComponents struct {
	SQLite    *storage.SQLite
	Events    *storage.SQLiteEventStorage
	Threats   *storage.SQLiteThreatStorage
	Anomalies *storage.SQLiteAnomalyStorage
	Retention *storage.RetentionManager
}

// InitSQLite opens the database and applies migrations.
func InitSQLite(dirs DataDirectories, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	sqlite, err := storage.NewSQLite(dirs.SQLite, sugar)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "SQLite Initialization Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", ClassifySQLiteError(err, dirs.SQLite))
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}
	return sqlite, nil
}

// InitStorage builds the event, threat and anomaly stores over sqlite.
// Timestamps without a zone are read in loc.
func InitStorage(sqlite *storage.SQLite, cfg *config.Config, loc *time.Location, sugar *zap.SugaredLogger) (*StorageComponents, error) {
	events := storage.NewSQLiteEventStorage(sqlite, loc, cfg.Storage.UserWindowLimit, sugar)
	threats := storage.NewSQLiteThreatStorage(sqlite, loc, sugar)
	anomalies, err := storage.NewSQLiteAnomalyStorage(sqlite, cfg.Storage.RunCacheSize, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize anomaly storage: %w", err)
	}

	policies := storage.StandardPolicies(events, threats, anomalies,
		cfg.Storage.EventRetentionDays,
		cfg.Storage.ThreatRetentionDays,
		cfg.Storage.RunRetentionDays)

	return &StorageComponents{
		SQLite:    sqlite,
		Events:    events,
		Threats:   threats,
		Anomalies: anomalies,
		Retention: storage.NewRetentionManager(policies, cfg.Storage.RetentionInterval, sugar),
	}, nil
}

// Close stops retention and closes the database.
func (s *StorageComponents) Close() error {
	if s == nil {
		return nil
	}
	if s.Retention != nil {
		s.Retention.Stop()
	}
	if s.SQLite != nil {
		return s.SQLite.Close()
	}
	return nil
}
