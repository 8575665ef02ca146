package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sentra/core"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SQLiteThreatStorage implements core.ThreatStore for SQLite
type SQLiteThreatStorage struct {
	sqlite   *SQLite
	location *time.Location
	logger   *zap.SugaredLogger
}

// NewSQLiteThreatStorage creates a new SQLite threat history storage
func NewSQLiteThreatStorage(sqlite *SQLite, loc *time.Location, logger *zap.SugaredLogger) *SQLiteThreatStorage {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SQLiteThreatStorage{sqlite: sqlite, location: loc, logger: logger}
}

// SaveThreats appends detections to the history in one transaction.
// Detections without an ID are assigned one in place.
func (s *SQLiteThreatStorage) SaveThreats(ctx context.Context, detections []core.ThreatDetection) error {
	if len(detections) == 0 {
		return nil
	}
	for i := range detections {
		if detections[i].ID == "" {
			detections[i].ID = uuid.New().String()
		}
	}

	recordedAt := time.Now().UnixNano()
	err := s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO threats (
				id, time, time_unix, user, source, technique, name, tactic, severity, details, recorded_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, d := range detections {
			var timeUnix sql.NullInt64
			if t, ok := core.ParseTimeIn(d.Time, s.location); ok {
				timeUnix = sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				d.ID, d.Time, timeUnix, d.User, d.Source, d.Technique, d.Name, d.Tactic, d.Severity, d.Details, recordedAt,
			); err != nil {
				return fmt.Errorf("failed to insert threat %s: %w", d.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save threats: %w", err)
	}
	s.logger.Debugw("Threat history appended", "count", len(detections))
	return nil
}

// LoadThreatHistory returns up to limit detections, most recently recorded
// batch first; within a batch the original order is kept.
func (s *SQLiteThreatStorage) LoadThreatHistory(ctx context.Context, limit int) ([]core.ThreatDetection, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := s.sqlite.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT id, time, user, source, technique, name, tactic, severity, details
		FROM threats
		ORDER BY recorded_at DESC, seq ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query threat history: %w", err)
	}
	defer rows.Close()

	out := make([]core.ThreatDetection, 0)
	for rows.Next() {
		var d core.ThreatDetection
		if err := rows.Scan(&d.ID, &d.Time, &d.User, &d.Source, &d.Technique, &d.Name, &d.Tactic, &d.Severity, &d.Details); err != nil {
			return nil, fmt.Errorf("failed to scan threat: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threats: %w", err)
	}
	return out, nil
}

// TechniqueCounts returns the most frequent techniques in the history
func (s *SQLiteThreatStorage) TechniqueCounts(ctx context.Context, limit int) ([]core.TechniqueCount, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := s.sqlite.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT technique, MAX(name), COUNT(*) AS hits
		FROM threats
		GROUP BY technique
		ORDER BY hits DESC, technique ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query technique counts: %w", err)
	}
	defer rows.Close()

	out := make([]core.TechniqueCount, 0)
	for rows.Next() {
		var tc core.TechniqueCount
		if err := rows.Scan(&tc.Technique, &tc.Name, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan technique count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// DeleteThreatsBefore removes history recorded before cutoff
func (s *SQLiteThreatStorage) DeleteThreatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.sqlite.checkOpen(); err != nil {
		return 0, err
	}
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM threats WHERE recorded_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old threats: %w", err)
	}
	return res.RowsAffected()
}
