package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sentra/core"

	"go.uber.org/zap"
)

// DefaultUserWindowLimit bounds related-event lookups
const DefaultUserWindowLimit = 500

// SQLiteEventStorage implements core.EventStore for SQLite
type SQLiteEventStorage struct {
	sqlite          *SQLite
	location        *time.Location
	userWindowLimit int
	logger          *zap.SugaredLogger
}

// NewSQLiteEventStorage creates a new SQLite event storage. Zone-less
// timestamps are interpreted in loc.
func NewSQLiteEventStorage(sqlite *SQLite, loc *time.Location, userWindowLimit int, logger *zap.SugaredLogger) *SQLiteEventStorage {
	if loc == nil {
		loc = time.Local
	}
	if userWindowLimit <= 0 {
		userWindowLimit = DefaultUserWindowLimit
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SQLiteEventStorage{
		sqlite:          sqlite,
		location:        loc,
		userWindowLimit: userWindowLimit,
		logger:          logger,
	}
}

// SaveEvents inserts events, ignoring ones already stored
func (s *SQLiteEventStorage) SaveEvents(ctx context.Context, events []core.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	var inserted int64
	err := s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		n, err := s.insertEvents(ctx, tx, events)
		inserted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save events: %w", err)
	}
	s.logger.Debugw("Events saved", "received", len(events), "inserted", inserted)
	return nil
}

// ReplaceEvents deletes every stored event and stores the given snapshot
func (s *SQLiteEventStorage) ReplaceEvents(ctx context.Context, events []core.EventRecord) error {
	err := s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM events`); err != nil {
			return err
		}
		_, err := s.insertEvents(ctx, tx, events)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to replace events: %w", err)
	}
	return nil
}

func (s *SQLiteEventStorage) insertEvents(ctx context.Context, tx *sql.Tx, events []core.EventRecord) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO events (
			fingerprint, time, time_unix, type, severity, user, process, details, source, collected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	collectedAt := time.Now().UnixNano()
	var inserted int64
	for _, e := range events {
		var timeUnix sql.NullInt64
		if t, ok := core.ParseTimeIn(e.Time, s.location); ok {
			timeUnix = sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
		}
		res, err := stmt.ExecContext(ctx,
			core.EventFingerprint(e),
			e.Time,
			timeUnix,
			e.Type,
			e.Severity,
			e.User,
			e.Process,
			e.Details,
			e.Source,
			collectedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert event: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}
	return inserted, nil
}

// DeleteEventsBefore removes events older than cutoff. Events without a
// parseable timestamp are aged by collection time.
func (s *SQLiteEventStorage) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.sqlite.checkOpen(); err != nil {
		return 0, err
	}
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		DELETE FROM events
		WHERE time_unix < ? OR (time_unix IS NULL AND collected_at < ?)
	`, cutoff.UnixMilli(), cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	return res.RowsAffected()
}

// GetEventsSince returns events at or after since, oldest first. Events whose
// timestamp does not parse are never returned.
func (s *SQLiteEventStorage) GetEventsSince(ctx context.Context, since time.Time) ([]core.EventRecord, error) {
	if err := s.sqlite.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT time, type, severity, user, process, details, source
		FROM events
		WHERE time_unix >= ?
		ORDER BY time_unix ASC, id ASC
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetEventsForUserWindow returns at most the configured limit of events for
// user in [start, end), newest first. User comparison ignores case.
func (s *SQLiteEventStorage) GetEventsForUserWindow(ctx context.Context, user string, start, end time.Time) ([]core.EventRecord, error) {
	if err := s.sqlite.checkOpen(); err != nil {
		return nil, err
	}
	query := `
		SELECT time, type, severity, user, process, details, source
		FROM events
		WHERE user = ? COLLATE NOCASE AND time_unix >= ? AND time_unix < ?
		ORDER BY time_unix DESC, id DESC
		LIMIT ?
	`
	args := []interface{}{user, start.UnixMilli(), end.UnixMilli(), s.userWindowLimit}
	if user == core.UnknownUser {
		query = `
		SELECT time, type, severity, user, process, details, source
		FROM events
		WHERE (user = ? COLLATE NOCASE OR trim(user) = '') AND time_unix >= ? AND time_unix < ?
		ORDER BY time_unix DESC, id DESC
		LIMIT ?
	`
	}

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user window: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CountEvents returns the number of stored events
func (s *SQLiteEventStorage) CountEvents(ctx context.Context) (int64, error) {
	if err := s.sqlite.checkOpen(); err != nil {
		return 0, err
	}
	var n int64
	if err := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func scanEvents(rows *sql.Rows) ([]core.EventRecord, error) {
	events := make([]core.EventRecord, 0)
	for rows.Next() {
		var e core.EventRecord
		if err := rows.Scan(&e.Time, &e.Type, &e.Severity, &e.User, &e.Process, &e.Details, &e.Source); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
