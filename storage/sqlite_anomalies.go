package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sentra/core"
	"sentra/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultRunCacheSize is the number of runs kept by LoadByRunKey
const DefaultRunCacheSize = 64

const anomalyColumns = `run_key, created_at, window_key, score, is_anomaly,
	total_events, failed_logins, errors, warnings, unique_processes, unique_sources`

// SQLiteAnomalyStorage implements core.AnomalyStore for SQLite
type SQLiteAnomalyStorage struct {
	sqlite   *SQLite
	runCache *lru.Cache[string, []core.RunRecord]
	logger   *zap.SugaredLogger
}

// NewSQLiteAnomalyStorage creates a new SQLite anomaly run storage
func NewSQLiteAnomalyStorage(sqlite *SQLite, cacheSize int, logger *zap.SugaredLogger) (*SQLiteAnomalyStorage, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultRunCacheSize
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	cache, err := lru.New[string, []core.RunRecord](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create run cache: %w", err)
	}
	return &SQLiteAnomalyStorage{sqlite: sqlite, runCache: cache, logger: logger}, nil
}

// SaveBatch stores records in one transaction. A record whose
// (run_key, window_key) already exists is ignored. Returns rows inserted.
func (s *SQLiteAnomalyStorage) SaveBatch(ctx context.Context, createdAt time.Time, records []core.RunRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for _, r := range records {
		if strings.TrimSpace(r.RunKey) == "" {
			return 0, ErrInvalidRunKey
		}
		if strings.TrimSpace(r.WindowKey) == "" {
			return 0, ErrInvalidWindowKey
		}
	}

	inserted := 0
	err := s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO ml_anomalies (`+anomalyColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			f := r.Features
			res, err := stmt.ExecContext(ctx,
				r.RunKey, createdAt.UnixNano(), r.WindowKey, r.Score, r.IsAnomaly,
				f[0], f[1], f[2], f[3], f[4], f[5],
			)
			if err != nil {
				return fmt.Errorf("failed to insert run record %s/%s: %w", r.RunKey, r.WindowKey, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save run batch: %w", err)
	}

	for _, r := range records {
		s.runCache.Remove(r.RunKey)
	}
	s.logger.Debugw("Run batch saved", "records", len(records), "inserted", inserted)
	return inserted, nil
}

// LoadRecent returns the most recently created records, highest score first within a run
func (s *SQLiteAnomalyStorage) LoadRecent(ctx context.Context, limit int) ([]core.RunRecord, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return s.query(ctx, `SELECT `+anomalyColumns+` FROM ml_anomalies
		ORDER BY created_at DESC, score DESC, window_key ASC
		LIMIT ?`, limit)
}

// LoadByRunKey returns every record of a run, highest score first
func (s *SQLiteAnomalyStorage) LoadByRunKey(ctx context.Context, runKey string) ([]core.RunRecord, error) {
	runKey = strings.TrimSpace(runKey)
	if runKey == "" {
		return nil, ErrInvalidRunKey
	}
	if cached, ok := s.runCache.Get(runKey); ok {
		metrics.RunCacheLookups.WithLabelValues("hit").Inc()
		return cloneRecords(cached), nil
	}
	metrics.RunCacheLookups.WithLabelValues("miss").Inc()

	records, err := s.query(ctx, `SELECT `+anomalyColumns+` FROM ml_anomalies
		WHERE run_key = ?
		ORDER BY score DESC, window_key ASC`, runKey)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		s.runCache.Add(runKey, cloneRecords(records))
	}
	return records, nil
}

// LoadRange returns records with fromKey <= run_key <= toKey, newest run first
func (s *SQLiteAnomalyStorage) LoadRange(ctx context.Context, fromKey, toKey string) ([]core.RunRecord, error) {
	fromKey, toKey = strings.TrimSpace(fromKey), strings.TrimSpace(toKey)
	if fromKey == "" || toKey == "" {
		return nil, ErrInvalidRunKey
	}
	if fromKey > toKey {
		fromKey, toKey = toKey, fromKey
	}
	return s.query(ctx, `SELECT `+anomalyColumns+` FROM ml_anomalies
		WHERE run_key BETWEEN ? AND ?
		ORDER BY run_key DESC, score DESC, window_key ASC`, fromKey, toKey)
}

// LoadRunStats returns per-run anomaly counts and max scores, newest run first
func (s *SQLiteAnomalyStorage) LoadRunStats(ctx context.Context, limit int) ([]core.RunStat, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := s.sqlite.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT run_key, COALESCE(SUM(is_anomaly), 0), MAX(score)
		FROM ml_anomalies
		GROUP BY run_key
		ORDER BY run_key DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run stats: %w", err)
	}
	defer rows.Close()

	stats := make([]core.RunStat, 0)
	for rows.Next() {
		var st core.RunStat
		if err := rows.Scan(&st.RunKey, &st.AnomalyCount, &st.MaxScore); err != nil {
			return nil, fmt.Errorf("failed to scan run stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// LoadRecentRunKeys returns distinct run keys, newest first
func (s *SQLiteAnomalyStorage) LoadRecentRunKeys(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := s.sqlite.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT DISTINCT run_key FROM ml_anomalies
		ORDER BY run_key DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan run key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteAnomalyStorage) query(ctx context.Context, query string, args ...interface{}) ([]core.RunRecord, error) {
	if err := s.sqlite.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run records: %w", err)
	}
	defer rows.Close()

	records := make([]core.RunRecord, 0)
	for rows.Next() {
		var (
			r         core.RunRecord
			createdAt int64
		)
		f := &r.Features
		if err := rows.Scan(&r.RunKey, &createdAt, &r.WindowKey, &r.Score, &r.IsAnomaly,
			&f[0], &f[1], &f[2], &f[3], &f[4], &f[5]); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run records: %w", err)
	}
	return records, nil
}

func cloneRecords(in []core.RunRecord) []core.RunRecord {
	out := make([]core.RunRecord, len(in))
	copy(out, in)
	return out
}

// DeleteRunsBefore removes run rows created before cutoff and empties the
// run cache.
func (s *SQLiteAnomalyStorage) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.sqlite.checkOpen(); err != nil {
		return 0, err
	}
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM ml_anomalies WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.runCache.Purge()
	}
	return n, nil
}
