package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sentra/core"
	"sentra/metrics"
	"sentra/ml"
	"sentra/storage"

	"go.uber.org/zap"
)

// ============================================================================
// Anomaly Service
// ============================================================================

// AnomalyServiceConfig holds configuration for AnomalyService
type AnomalyServiceConfig struct {
	BaselineDays    int           // History window loaded for the baseline (default: 7)
	LiveWindow      time.Duration // Target window of a scheduled run (default: 1h)
	RunStatsLimit   int           // Runs returned by Stats (default: 50)
	RecentRunKeys   int           // Runs returned by RecentRuns (default: 20)
	RecentRowsLimit int           // Rows returned by Recent (default: 200)
	ExplainTop      int           // Reasons reported per flagged window (default: 3)
	Logger          *zap.SugaredLogger
}

// AnomalyService scores user-hour windows, records runs and compares them.
type AnomalyService struct {
	cfg       AnomalyServiceConfig
	session   *core.Session
	events    core.EventStore
	anomalies core.AnomalyStore
	pipeline  *ml.Pipeline
	now       func() time.Time
	logger    *zap.SugaredLogger
}

// ScoreRun is the outcome of Score: the pipeline result plus what was stored.
type ScoreRun struct {
	RunKey     string              `json:"run_key" yaml:"run_key"`
	Result     *ml.PipelineResult  `json:"result" yaml:"result"`
	Records    []core.RunRecord    `json:"records" yaml:"records"`
	Inserted   int                 `json:"inserted" yaml:"inserted"`
	Reasons    map[string][]string `json:"reasons,omitempty" yaml:"reasons,omitempty"`
	PersistErr error               `json:"-" yaml:"-"`
}

// RunRow is one record of a run table with its comparison status.
type RunRow struct {
	core.RunRecord `yaml:",inline"`
	Status         string `json:"status" yaml:"status"`
}

// RunTable is a run (A) optionally compared with another run (B).
type RunTable struct {
	RunA       string            `json:"run_a" yaml:"run_a"`
	RunB       string            `json:"run_b,omitempty" yaml:"run_b,omitempty"`
	RowsA      []RunRow          `json:"rows_a" yaml:"rows_a"`
	RowsB      []RunRow          `json:"rows_b,omitempty" yaml:"rows_b,omitempty"`
	Comparison *ml.RunComparison `json:"comparison,omitempty" yaml:"comparison,omitempty"`
}

// NewAnomalyService creates an AnomalyService.
// session may be nil when scoring should only use stored history.
func NewAnomalyService(
	config *AnomalyServiceConfig,
	session *core.Session,
	events core.EventStore,
	anomalies core.AnomalyStore,
	pipeline *ml.Pipeline,
) *AnomalyService {
	if events == nil {
		panic("event store is required")
	}
	if anomalies == nil {
		panic("anomaly store is required")
	}
	if pipeline == nil {
		panic("pipeline is required")
	}
	if config == nil {
		config = &AnomalyServiceConfig{}
	}
	if config.BaselineDays <= 0 {
		config.BaselineDays = 7
	}
	if config.LiveWindow <= 0 {
		config.LiveWindow = time.Hour
	}
	if config.RunStatsLimit <= 0 {
		config.RunStatsLimit = 50
	}
	if config.RecentRunKeys <= 0 {
		config.RecentRunKeys = 20
	}
	if config.RecentRowsLimit <= 0 {
		config.RecentRowsLimit = 200
	}
	if config.ExplainTop <= 0 {
		config.ExplainTop = 3
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}

	return &AnomalyService{
		cfg:       *config,
		session:   session,
		events:    events,
		anomalies: anomalies,
		pipeline:  pipeline,
		now:       time.Now,
		logger:    config.Logger,
	}
}

// SetClock replaces the time source.
func (s *AnomalyService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// LiveWindow returns the configured scheduled target window.
func (s *AnomalyService) LiveWindow() time.Duration {
	return s.cfg.LiveWindow
}

// History returns the baseline history: stored events of the last baseline
// days merged with the current snapshot, deduplicated by fingerprint.
func (s *AnomalyService) History(ctx context.Context) ([]core.EventRecord, error) {
	since := s.now().Add(-time.Duration(s.cfg.BaselineDays) * 24 * time.Hour)
	stored, err := s.events.GetEventsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load event history: %w", err)
	}
	if s.session == nil {
		return stored, nil
	}

	snapshot, err := s.session.Events(ctx)
	if err != nil {
		// stored history alone still gives a usable baseline
		s.logger.Warnw("Event snapshot unavailable, scoring stored history only", "error", err)
		return stored, nil
	}

	seen := make(map[string]struct{}, len(stored)+len(snapshot))
	history := make([]core.EventRecord, 0, len(stored)+len(snapshot))
	for _, batch := range [][]core.EventRecord{stored, snapshot} {
		for _, e := range batch {
			fp := core.EventFingerprint(e)
			if _, dup := seen[fp]; dup {
				continue
			}
			seen[fp] = struct{}{}
			history = append(history, e)
		}
	}
	return history, nil
}

// Preview scores window without recording a run.
func (s *AnomalyService) Preview(ctx context.Context, window time.Duration) (*ml.PipelineResult, error) {
	if window <= 0 {
		window = s.cfg.LiveWindow
	}
	history, err := s.History(ctx)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Run(history, s.now(), window), nil
}

// Score runs the pipeline over window and records the run. A storage
// failure is logged and reported in PersistErr; the scores are kept.
func (s *AnomalyService) Score(ctx context.Context, window time.Duration) (*ScoreRun, error) {
	if window <= 0 {
		window = s.cfg.LiveWindow
	}
	history, err := s.History(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := s.pipeline.Run(history, now, window)
	run := &ScoreRun{
		RunKey:  ml.RunKey(now),
		Result:  res,
		Records: ml.BuildRunRecords(ml.RunKey(now), now, res.Scored, res.TargetRows),
		Reasons: make(map[string][]string),
	}
	for _, a := range res.Scored {
		if !a.IsAnomaly {
			continue
		}
		if row, ok := res.TargetRow(a.Key); ok {
			run.Reasons[a.Key] = ml.ExplainText(row.Features, res.BaselineMean, s.cfg.ExplainTop)
		}
	}

	if len(run.Records) == 0 {
		return run, nil
	}
	inserted, err := s.anomalies.SaveBatch(ctx, now, run.Records)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("anomalies").Inc()
		s.logger.Errorw("Failed to persist anomaly run",
			"run_key", run.RunKey,
			"records", len(run.Records),
			"error", err)
		run.PersistErr = err
		return run, nil
	}
	run.Inserted = inserted
	s.logger.Infow("Anomaly run recorded",
		"run_key", run.RunKey,
		"records", len(run.Records),
		"inserted", inserted)
	return run, nil
}

// Recent returns the most recently stored run rows.
func (s *AnomalyService) Recent(ctx context.Context) ([]core.RunRecord, error) {
	records, err := s.anomalies.LoadRecent(ctx, s.cfg.RecentRowsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent anomalies: %w", err)
	}
	return records, nil
}

// RecentRuns returns the newest run keys.
func (s *AnomalyService) RecentRuns(ctx context.Context) ([]string, error) {
	keys, err := s.anomalies.LoadRecentRunKeys(ctx, s.cfg.RecentRunKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to load run keys: %w", err)
	}
	return keys, nil
}

// Stats returns per-run anomaly counts and max scores, newest first.
func (s *AnomalyService) Stats(ctx context.Context) ([]core.RunStat, error) {
	stats, err := s.anomalies.LoadRunStats(ctx, s.cfg.RunStatsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load run stats: %w", err)
	}
	return stats, nil
}

// Range returns rows of the runs between two keys, inclusive.
func (s *AnomalyService) Range(ctx context.Context, fromKey, toKey string) ([]core.RunRecord, error) {
	if _, err := ml.ParseRunKey(fromKey); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidRunKey, err)
	}
	if _, err := ml.ParseRunKey(toKey); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidRunKey, err)
	}
	records, err := s.anomalies.LoadRange(ctx, fromKey, toKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load run range: %w", err)
	}
	return records, nil
}

// Show returns the rows of one run. An unknown run is ErrRunNotFound.
func (s *AnomalyService) Show(ctx context.Context, runKey string) (*RunTable, error) {
	return s.Compare(ctx, runKey, "")
}

// Compare loads run A and, when runB is not empty, run B, and marks every
// row with its comparison status.
func (s *AnomalyService) Compare(ctx context.Context, runA, runB string) (*RunTable, error) {
	recordsA, err := s.loadRun(ctx, runA)
	if err != nil {
		return nil, err
	}
	table := &RunTable{RunA: runA}
	if strings.TrimSpace(runB) == "" {
		table.RowsA = runRows(recordsA, nil, ml.ViewA)
		return table, nil
	}

	recordsB, err := s.loadRun(ctx, runB)
	if err != nil {
		return nil, err
	}
	cmp := ml.CompareRuns(runA, recordsA, runB, recordsB)
	table.RunB = runB
	table.Comparison = cmp
	table.RowsA = runRows(recordsA, cmp, ml.ViewA)
	table.RowsB = runRows(recordsB, cmp, ml.ViewB)
	return table, nil
}

func (s *AnomalyService) loadRun(ctx context.Context, runKey string) ([]core.RunRecord, error) {
	if _, err := ml.ParseRunKey(runKey); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidRunKey, err)
	}
	records, err := s.anomalies.LoadByRunKey(ctx, runKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runKey, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", storage.ErrRunNotFound, runKey)
	}
	return records, nil
}

func runRows(records []core.RunRecord, cmp *ml.RunComparison, view ml.RunView) []RunRow {
	rows := make([]RunRow, len(records))
	for i, rec := range records {
		rows[i] = RunRow{RunRecord: rec, Status: cmp.StatusFor(view, rec)}
	}
	return rows
}

// RelatedEvents returns stored events of the user and hour a window key
// names, newest first.
func (s *AnomalyService) RelatedEvents(ctx context.Context, windowKey string) ([]core.EventRecord, error) {
	user, bucket, ok := ml.ParseWindowKey(windowKey, s.now(), s.pipeline.Builder().Location())
	if !ok {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidWindowKey, windowKey)
	}
	events, err := s.events.GetEventsForUserWindow(ctx, user, bucket, bucket.Add(time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to load events for %s: %w", windowKey, err)
	}
	return events, nil
}
