package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRunner(t *testing.T, s *SQLite) *MigrationRunner {
	t.Helper()
	runner, err := NewMigrationRunner(context.Background(), s.WriteDB, s.Logger)
	require.NoError(t, err)
	runner.Register(sqliteMigrations()...)
	return runner
}

// TestRunMigrations_AppliesAll tests every registered migration is recorded once
func TestRunMigrations_AppliesAll(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	runner := newTestRunner(t, s)

	applied, err := runner.Applied(ctx)
	require.NoError(t, err)
	versions := make([]int, 0, len(applied))
	for _, a := range applied {
		versions = append(versions, a.Version)
		assert.False(t, a.AppliedAt.IsZero())
	}
	assert.Equal(t, []int{schemaBase, schemaRunKeys, schemaQueryIndexes}, versions)

	pending, err := runner.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, s.RunMigrations(ctx), "re-running is a no-op")

	issues, err := runner.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

// TestRunMigrations_LegacyAnomalyTable tests run keys are backfilled and duplicates collapsed
func TestRunMigrations_LegacyAnomalyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(`
		CREATE TABLE ml_anomalies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			window_key TEXT NOT NULL,
			score REAL NOT NULL,
			is_anomaly INTEGER NOT NULL DEFAULT 0,
			total_events REAL NOT NULL DEFAULT 0,
			failed_logins REAL NOT NULL DEFAULT 0,
			errors REAL NOT NULL DEFAULT 0,
			warnings REAL NOT NULL DEFAULT 0,
			unique_processes REAL NOT NULL DEFAULT 0,
			unique_sources REAL NOT NULL DEFAULT 0
		)`)
	require.NoError(t, err)

	created := time.Date(2025, 12, 9, 10, 30, 0, 0, time.UTC).UnixNano()
	for _, row := range []struct {
		key   string
		score float64
	}{
		{"alice | 12-09 09:00", 4.2},
		{"alice | 12-09 09:00", 4.2},
		{"bob | 12-09 09:00", 1.1},
	} {
		_, err = raw.Exec(`INSERT INTO ml_anomalies (created_at, window_key, score) VALUES (?, ?, ?)`, created, row.key, row.score)
		require.NoError(t, err)
	}
	require.NoError(t, raw.Close())

	s, err := NewSQLite(path, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer s.Close()

	store, err := NewSQLiteAnomalyStorage(s, 0, nil)
	require.NoError(t, err)

	records, err := store.LoadByRunKey(context.Background(), "2025-12-09-10")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "alice | 12-09 09:00", records[0].WindowKey)
}

// TestMigrationRunner_AppliesNewVersion tests a later migration is applied once on an existing database
func TestMigrationRunner_AppliesNewVersion(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	runner := newTestRunner(t, s)

	calls := 0
	runner.Register(Migration{Version: 10, Name: "events_host", Up: func(tx *sql.Tx) error {
		calls++
		return addColumnIfNotExists(tx, "events", "host", "TEXT NOT NULL DEFAULT ''")
	}})

	pending, err := runner.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 10, pending[0].Version)

	require.NoError(t, runner.Migrate(ctx))
	require.NoError(t, runner.Migrate(ctx), "applied versions are skipped")
	assert.Equal(t, 1, calls)

	applied, err := runner.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 4)
	assert.Equal(t, "events_host", applied[3].Name)

	tx, err := s.WriteDB.Begin()
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	exists, err := columnExists(tx, "events", "host")
	require.NoError(t, err)
	assert.True(t, exists)
}

// TestMigrationRunner_FailedUpRollsBack tests a failing or panicking Up leaves no record
func TestMigrationRunner_FailedUpRollsBack(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	runner := newTestRunner(t, s)

	runner.Register(Migration{Version: 10, Name: "broken", Up: func(tx *sql.Tx) error {
		if _, err := tx.Exec(`CREATE TABLE half_done (id INTEGER)`); err != nil {
			return err
		}
		return errors.New("boom")
	}})
	err := runner.Migrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 10 (broken) failed")

	var count int
	require.NoError(t, s.WriteDB.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'half_done'`).Scan(&count))
	assert.Zero(t, count)

	runner.Register(Migration{Version: 10, Name: "broken", Up: func(tx *sql.Tx) error {
		panic("unexpected")
	}})
	err = runner.Migrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: unexpected")

	pending, err := runner.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

// TestMigrationRunner_VerifyIntegrity tests checksum drift detection
func TestMigrationRunner_VerifyIntegrity(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	runner := newTestRunner(t, s)

	changed := sqliteMigrations()[schemaQueryIndexes-1]
	changed.Checksum = "changed"
	runner.Register(changed)

	issues, err := runner.VerifyIntegrity(ctx)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "migration 3 checksum mismatch")
}

// TestValidateSQLIdentifier tests identifier validation
func TestValidateSQLIdentifier(t *testing.T) {
	assert.NoError(t, validateSQLIdentifier("ml_anomalies"))
	assert.NoError(t, validateSQLIdentifier("_x1"))
	assert.Error(t, validateSQLIdentifier(""))
	assert.Error(t, validateSQLIdentifier("1abc"))
	assert.Error(t, validateSQLIdentifier("events; DROP TABLE events"))
}
