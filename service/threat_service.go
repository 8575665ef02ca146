package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"sentra/core"
	"sentra/detect"
	"sentra/metrics"

	"go.uber.org/zap"
)

// ============================================================================
// Threat Service
// ============================================================================

const (
	defaultHistoryLimit = 1000
	maxHistoryLimit     = 100000
)

// DetectOptions narrows the snapshot a detection pass runs on.
type DetectOptions struct {
	Range core.TimeRange
	// ApplyNoise drops events the noise preprocessor rejects before matching.
	ApplyNoise bool
	// Persist appends the detections to the threat history.
	Persist bool
}

// DetectResult is the outcome of one detection pass.
// PersistErr is set when detection succeeded but history storage failed.
type DetectResult struct {
	Detections    []core.ThreatDetection `json:"detections" yaml:"detections"`
	EventsScanned int                    `json:"events_scanned" yaml:"events_scanned"`
	NoiseDropped  int                    `json:"noise_dropped" yaml:"noise_dropped"`
	Persisted     bool                   `json:"persisted" yaml:"persisted"`
	PersistErr    error                  `json:"-" yaml:"-"`
}

// HighSeverityCount returns the number of High detections.
func (r *DetectResult) HighSeverityCount() int {
	n := 0
	for _, d := range r.Detections {
		if strings.EqualFold(d.Severity, core.SeverityHigh) {
			n++
		}
	}
	return n
}

// ThreatFilter selects detections for display. Empty fields match everything.
type ThreatFilter struct {
	Range     core.TimeRange
	Severity  string // exact, case-insensitive; "all" matches everything
	Technique string // substring, case-insensitive
	Limit     int
}

// ThreatService runs the rule engine over the session snapshot and keeps
// the threat history.
type ThreatService struct {
	session *core.Session
	noise   *core.NoiseFilter
	engine  *detect.Engine
	store   core.ThreatStore
	limit   int
	now     func() time.Time
	logger  *zap.SugaredLogger
}

// NewThreatService creates a ThreatService. store may be nil, in which case
// nothing is persisted and History is unavailable.
func NewThreatService(
	session *core.Session,
	noise *core.NoiseFilter,
	engine *detect.Engine,
	store core.ThreatStore,
	logger *zap.SugaredLogger,
) *ThreatService {
	if session == nil {
		panic("session is required")
	}
	if engine == nil {
		panic("engine is required")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if noise == nil {
		noise = core.NewNoiseFilter(core.NoiseFilterConfig{})
	}
	return &ThreatService{
		session: session,
		noise:   noise,
		engine:  engine,
		store:   store,
		limit:   defaultHistoryLimit,
		now:     time.Now,
		logger:  logger,
	}
}

// SetClock replaces the time source used for range filtering.
func (s *ThreatService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetHistoryLimit sets how many stored detections History reads when the
// filter has no limit. Values outside 1..100000 are ignored.
func (s *ThreatService) SetHistoryLimit(n int) {
	if n > 0 && n <= maxHistoryLimit {
		s.limit = n
	}
}

// Detect classifies the current snapshot. Persistence failures are logged
// and reported through PersistErr; the detections are still returned.
func (s *ThreatService) Detect(ctx context.Context, opts DetectOptions) (*DetectResult, error) {
	events, err := s.session.View(ctx, core.ViewOptions{Range: opts.Range})
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	res := &DetectResult{EventsScanned: len(events)}
	if opts.ApplyNoise {
		kept := s.noise.Filter(events)
		res.NoiseDropped = len(events) - len(kept)
		metrics.EventsDroppedNoise.Add(float64(res.NoiseDropped))
		events = kept
	}

	res.Detections = s.engine.Detect(events)

	if opts.Persist && s.store != nil && len(res.Detections) > 0 {
		if err := s.store.SaveThreats(ctx, res.Detections); err != nil {
			metrics.PersistenceFailures.WithLabelValues("threats").Inc()
			s.logger.Errorw("Failed to persist threat detections",
				"detections", len(res.Detections),
				"error", err)
			res.PersistErr = err
		} else {
			res.Persisted = true
		}
	}

	s.logger.Infow("Threat detection complete",
		"range", opts.Range.String(),
		"events", res.EventsScanned,
		"noise_dropped", res.NoiseDropped,
		"detections", len(res.Detections))
	return res, nil
}

// History returns stored detections matching filter, newest first.
func (s *ThreatService) History(ctx context.Context, filter ThreatFilter) ([]core.ThreatDetection, error) {
	if s.store == nil {
		return nil, fmt.Errorf("threat history is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = s.limit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	history, err := s.store.LoadThreatHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load threat history: %w", err)
	}
	return FilterDetections(history, filter, s.now(), s.session.Location()), nil
}

// TopTechniques returns the most frequent techniques in the stored history.
func (s *ThreatService) TopTechniques(ctx context.Context, limit int) ([]core.TechniqueCount, error) {
	if s.store == nil {
		return nil, fmt.Errorf("threat history is not configured")
	}
	counts, err := s.store.TechniqueCounts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to count techniques: %w", err)
	}
	return counts, nil
}

// FilterDetections applies filter to detections, preserving order.
// Detections with unparseable times are kept only for TimeRangeAll. Times
// without a zone are read in loc.
func FilterDetections(detections []core.ThreatDetection, filter ThreatFilter, now time.Time, loc *time.Location) []core.ThreatDetection {
	severity := strings.TrimSpace(filter.Severity)
	if strings.EqualFold(severity, "all") {
		severity = ""
	}
	technique := strings.ToLower(strings.TrimSpace(filter.Technique))
	window := filter.Range.Window()
	cutoff := now.Add(-window)

	out := make([]core.ThreatDetection, 0, len(detections))
	for _, d := range detections {
		if severity != "" && !strings.EqualFold(d.Severity, severity) {
			continue
		}
		if technique != "" && !strings.Contains(strings.ToLower(d.Technique), technique) {
			continue
		}
		if window > 0 {
			t, ok := core.ParseTimeIn(d.Time, loc)
			if !ok || t.Before(cutoff) || t.After(now) {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

// CountTechniques groups detections by technique, most frequent first.
// Ties are ordered by technique ID.
func CountTechniques(detections []core.ThreatDetection, limit int) []core.TechniqueCount {
	byID := make(map[string]*core.TechniqueCount)
	for _, d := range detections {
		c := byID[d.Technique]
		if c == nil {
			c = &core.TechniqueCount{Technique: d.Technique, Name: d.Name}
			byID[d.Technique] = c
		}
		c.Count++
	}
	out := make([]core.TechniqueCount, 0, len(byID))
	for _, c := range byID {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Technique < out[j].Technique
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
