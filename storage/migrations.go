package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Migration is one numbered schema change. Versions are applied in ascending
// order.
type Migration struct {
	Version  int
	Name     string
	Up       func(*sql.Tx) error
	Checksum string
}

// AppliedMigration is a row of schema_migrations
type AppliedMigration struct {
	Version   int
	Name      string
	Checksum  string
	AppliedAt time.Time
	Took      time.Duration
}

// MigrationRunner tracks applied schema versions in schema_migrations
type MigrationRunner struct {
	db         *sql.DB
	logger     *zap.SugaredLogger
	migrations map[int]Migration
}

// NewMigrationRunner creates the bookkeeping table if needed
func NewMigrationRunner(ctx context.Context, db *sql.DB, logger *zap.SugaredLogger) (*MigrationRunner, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at INTEGER NOT NULL, -- unix milliseconds
		took_ms INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	return &MigrationRunner{db: db, logger: logger, migrations: make(map[int]Migration)}, nil
}

// Register adds migrations; registering a version twice keeps the last one
func (r *MigrationRunner) Register(migrations ...Migration) {
	for _, m := range migrations {
		if m.Checksum == "" {
			m.Checksum = migrationChecksum(m)
		}
		r.migrations[m.Version] = m
	}
}

func migrationChecksum(m Migration) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", m.Version, m.Name)))
	return hex.EncodeToString(sum[:8])
}

// Applied returns applied migrations in version order
func (r *MigrationRunner) Applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT version, name, checksum, applied_at, took_ms
		FROM schema_migrations
		ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			a         AppliedMigration
			appliedAt int64
			tookMS    int64
		)
		if err := rows.Scan(&a.Version, &a.Name, &a.Checksum, &appliedAt, &tookMS); err != nil {
			return nil, fmt.Errorf("failed to scan migration record: %w", err)
		}
		a.AppliedAt = time.UnixMilli(appliedAt).UTC()
		a.Took = time.Duration(tookMS) * time.Millisecond
		applied = append(applied, a)
	}
	return applied, rows.Err()
}

// Pending returns registered migrations that are not applied, in version order
func (r *MigrationRunner) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}

	var pending []Migration
	for v, m := range r.migrations {
		if !done[v] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })
	return pending, nil
}

// Migrate applies every pending migration, each in its own transaction
func (r *MigrationRunner) Migrate(ctx context.Context) error {
	pending, err := r.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		r.logger.Debug("Schema is up to date")
		return nil
	}

	r.logger.Infof("Applying %d schema migrations", len(pending))
	for _, m := range pending {
		start := time.Now()
		err := r.inMigrationTx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO schema_migrations (version, name, checksum, applied_at, took_ms)
				VALUES (?, ?, ?, ?, ?)`,
				m.Version, m.Name, m.Checksum, time.Now().UnixMilli(), time.Since(start).Milliseconds())
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		r.logger.Infow("Migration applied", "version", m.Version, "name", m.Name, "took", time.Since(start))
	}
	return nil
}

// VerifyIntegrity lists applied migrations that are unregistered or whose
// checksum changed since they were applied.
func (r *MigrationRunner) VerifyIntegrity(ctx context.Context) ([]string, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}

	var issues []string
	for _, a := range applied {
		m, ok := r.migrations[a.Version]
		switch {
		case !ok:
			issues = append(issues, fmt.Sprintf("migration %d (%s) is applied but not registered", a.Version, a.Name))
		case m.Checksum != a.Checksum:
			issues = append(issues, fmt.Sprintf("migration %d checksum mismatch: applied=%s, registered=%s",
				a.Version, a.Checksum, m.Checksum))
		}
	}
	return issues, nil
}

// inMigrationTx runs fn in a write transaction. A panic inside fn rolls back
// and comes back as an error.
func (r *MigrationRunner) inMigrationTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// validateSQLIdentifier allows only [A-Za-z_][A-Za-z0-9_]*
func validateSQLIdentifier(name string) error {
	if name == "" {
		return errors.New("SQL identifier cannot be empty")
	}
	for i, c := range name {
		letter := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
		digit := c >= '0' && c <= '9'
		if !letter && !(digit && i > 0) {
			return fmt.Errorf("invalid SQL identifier %q at position %d", name, i)
		}
	}
	return nil
}

func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	for _, id := range []string{table, column} {
		if err := validateSQLIdentifier(id); err != nil {
			return false, err
		}
	}

	var count int
	err := tx.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&count)
	return count > 0, err
}

func addColumnIfNotExists(tx *sql.Tx, table, column, definition string) error {
	exists, err := columnExists(tx, table, column)
	if err != nil || exists {
		return err
	}
	_, err = tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

func createIndexIfNotExists(tx *sql.Tx, name, table string, unique bool, columns ...string) error {
	for _, id := range append([]string{name, table}, columns...) {
		if err := validateSQLIdentifier(id); err != nil {
			return err
		}
	}

	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	_, err := tx.Exec(fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s(%s)",
		kind, name, table, strings.Join(columns, ", ")))
	return err
}
