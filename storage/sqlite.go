package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"sentra/metrics"
	"sentra/util/goroutine"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite holds the connection pools behind the event, threat and anomaly
// stores. WAL allows one writer next to concurrent readers, so writes and
// reads use separate pools.
type SQLite struct {
	WriteDB *sql.DB // single WAL writer
	ReadDB  *sql.DB // query_only readers
	Path    string
	Logger  *zap.SugaredLogger

	closed atomic.Bool

	// last exported cumulative counters, keyed by pool
	exported map[string]*poolCounters
}

type poolCounters struct {
	waits      int64
	idleClosed int64
}

// connectionPragmas run on every pool before use
var connectionPragmas = []struct{ stmt, what string }{
	{"PRAGMA journal_mode=WAL", "enable WAL mode"},
	{"PRAGMA foreign_keys=ON", "enable foreign keys"},
	{"PRAGMA busy_timeout=5000", "set busy timeout"},
}

func applyPragmas(db *sql.DB, dbPath, pool string, logger *zap.SugaredLogger) error {
	for _, p := range connectionPragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			return fmt.Errorf("failed to %s on %s pool: %w", p.what, pool, err)
		}
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to query journal mode: %w", err)
	}
	// in-memory databases report "memory"
	if dbPath != ":memory:" && mode != "wal" {
		return fmt.Errorf("%s pool journal mode is %q, want wal", pool, mode)
	}
	logger.Debugw("SQLite pool ready", "pool", pool, "journal_mode", mode)
	return nil
}

// NewSQLite opens the database, configures both pools and applies migrations
func NewSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if err := validateDatabasePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	dir := filepath.Dir(dbPath)
	if dbPath != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Both pools must see the same in-memory database
	actualPath := dbPath
	if dbPath == ":memory:" {
		actualPath = "file::memory:?cache=shared"
	}

	writeDB, err := sql.Open("sqlite", actualPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite write database: %w", err)
	}
	if err := applyPragmas(writeDB, dbPath, "write", logger); err != nil {
		_ = writeDB.Close()
		return nil, err
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0) // in-memory databases vanish with their last connection
	writeDB.SetConnMaxIdleTime(10 * time.Minute)

	// query_only must hold on every pooled read connection, not just the first
	readDB, err := sql.Open("sqlite", withPragma(actualPath, "query_only(1)"))
	if err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("failed to open SQLite read database: %w", err)
	}
	if err := applyPragmas(readDB, dbPath, "read", logger); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, err
	}
	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	readDB.SetConnMaxIdleTime(10 * time.Minute)

	s := &SQLite{
		WriteDB:  writeDB,
		ReadDB:   readDB,
		Path:     dbPath,
		Logger:   logger,
		exported: map[string]*poolCounters{"write": {}, "read": {}},
	}

	if err := s.RunMigrations(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Infow("SQLite database initialized", "path", dbPath)
	return s, nil
}

// withPragma appends a modernc _pragma DSN parameter
func withPragma(dsn, pragma string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=" + pragma
}

// RunMigrations applies every pending schema migration and logs drift
func (s *SQLite) RunMigrations(ctx context.Context) error {
	runner, err := NewMigrationRunner(ctx, s.WriteDB, s.Logger)
	if err != nil {
		return err
	}
	runner.Register(sqliteMigrations()...)
	if err := runner.Migrate(ctx); err != nil {
		return err
	}

	issues, err := runner.VerifyIntegrity(ctx)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		s.Logger.Warnw("Schema migration drift", "issue", issue)
	}
	return nil
}

// WithTransaction executes fn within a write transaction. The transaction is
// rolled back when fn returns an error or panics.
func (s *SQLite) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.WriteDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction (original error: %w, rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes both connection pools
func (s *SQLite) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var writeErr, readErr error
	if s.WriteDB != nil {
		writeErr = s.WriteDB.Close()
	}
	if s.ReadDB != nil {
		readErr = s.ReadDB.Close()
	}

	if writeErr != nil {
		return fmt.Errorf("failed to close write pool: %w", writeErr)
	}
	if readErr != nil {
		return fmt.Errorf("failed to close read pool: %w", readErr)
	}
	return nil
}

// HealthCheck pings both pools
func (s *SQLite) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.WriteDB.PingContext(ctx); err != nil {
		return fmt.Errorf("write pool unhealthy: %w", err)
	}
	if err := s.ReadDB.PingContext(ctx); err != nil {
		return fmt.Errorf("read pool unhealthy: %w", err)
	}
	return nil
}

func (s *SQLite) checkOpen() error {
	if s.closed.Load() {
		return ErrDatabaseClosed
	}
	return nil
}

// PoolStats is a snapshot of one connection pool
type PoolStats struct {
	MaxOpen       int           `json:"max_open_connections"`
	Open          int           `json:"open_connections"`
	InUse         int           `json:"in_use"`
	Idle          int           `json:"idle"`
	WaitCount     int64         `json:"wait_count"`
	WaitDuration  time.Duration `json:"wait_duration"`
	MaxIdleClosed int64         `json:"max_idle_closed"`
}

// Pools returns current statistics of the write and read pools
func (s *SQLite) Pools() map[string]PoolStats {
	out := make(map[string]PoolStats, 2)
	for pool, db := range map[string]*sql.DB{"write": s.WriteDB, "read": s.ReadDB} {
		st := db.Stats()
		out[pool] = PoolStats{
			MaxOpen:       st.MaxOpenConnections,
			Open:          st.OpenConnections,
			InUse:         st.InUse,
			Idle:          st.Idle,
			WaitCount:     st.WaitCount,
			WaitDuration:  st.WaitDuration,
			MaxIdleClosed: st.MaxIdleClosed,
		}
	}
	return out
}

// StartMetricsCollection exports pool statistics now and then every
// interval until ctx is done or the database is closed.
func (s *SQLite) StartMetricsCollection(ctx context.Context, interval time.Duration) {
	s.exportPoolMetrics()

	goroutine.Go("sqlite-pool-metrics", s.Logger, func() {
		goroutine.RunEvery(ctx, "sqlite-pool-metrics", interval, s.Logger, func(context.Context) error {
			if s.closed.Load() {
				return nil
			}
			s.exportPoolMetrics()
			return nil
		})
	})
}

// exportPoolMetrics sets the gauges and adds counter deltas since the last export
func (s *SQLite) exportPoolMetrics() {
	for pool, st := range s.Pools() {
		metrics.SQLitePoolOpenConnections.WithLabelValues(pool).Set(float64(st.Open))
		metrics.SQLitePoolInUse.WithLabelValues(pool).Set(float64(st.InUse))
		metrics.SQLitePoolIdle.WithLabelValues(pool).Set(float64(st.Idle))
		metrics.SQLitePoolMaxOpenConnections.WithLabelValues(pool).Set(float64(st.MaxOpen))

		prev := s.exported[pool]
		if d := st.WaitCount - prev.waits; d > 0 {
			metrics.SQLitePoolWaitCount.WithLabelValues(pool).Add(float64(d))
			prev.waits = st.WaitCount
		}
		if d := st.MaxIdleClosed - prev.idleClosed; d > 0 {
			metrics.SQLitePoolMaxIdleClosed.WithLabelValues(pool).Add(float64(d))
			prev.idleClosed = st.MaxIdleClosed
		}
	}
}

// validateDatabasePath rejects paths that could escape the working directory.
// Temp directories and ":memory:" are allowed.
func validateDatabasePath(dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if dbPath == ":memory:" {
		return nil
	}
	if len(dbPath) > 512 {
		return fmt.Errorf("database path exceeds maximum length of 512 characters")
	}
	if strings.Contains(dbPath, "\x00") {
		return fmt.Errorf("null bytes not allowed in path")
	}
	if strings.Contains(dbPath, "..") {
		return fmt.Errorf("path traversal not allowed (..): %s", dbPath)
	}

	inTemp := strings.HasPrefix(filepath.Clean(dbPath), filepath.Clean(os.TempDir()))
	if filepath.IsAbs(dbPath) && !inTemp {
		return fmt.Errorf("absolute paths not allowed: %s", dbPath)
	}

	if isWindowsDeviceName(filepath.Base(dbPath)) {
		return fmt.Errorf("reserved name not allowed: %s", filepath.Base(dbPath))
	}

	if inTemp {
		return nil
	}

	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	rel, err := filepath.Rel(wd, absPath)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}
	if strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path escapes working directory: %s resolves to %s", dbPath, absPath)
	}
	return nil
}

// isWindowsDeviceName reports CON, PRN, AUX, NUL, COM1-9 and LPT1-9, with or
// without an extension.
func isWindowsDeviceName(base string) bool {
	name := strings.ToUpper(base)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	switch name {
	case "CON", "PRN", "AUX", "NUL":
		return true
	}
	if len(name) == 4 && (strings.HasPrefix(name, "COM") || strings.HasPrefix(name, "LPT")) {
		return name[3] >= '1' && name[3] <= '9'
	}
	return false
}
