package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimeRange selects how much of the current snapshot a view covers.
type TimeRange int

const (
	TimeRangeAll TimeRange = iota
	TimeRangeLastHour
	TimeRangeLast24Hours
)

// String returns the flag spelling of the range.
func (r TimeRange) String() string {
	switch r {
	case TimeRangeLastHour:
		return "1h"
	case TimeRangeLast24Hours:
		return "24h"
	default:
		return "all"
	}
}

// Window returns the range length, or zero for TimeRangeAll.
func (r TimeRange) Window() time.Duration {
	switch r {
	case TimeRangeLastHour:
		return time.Hour
	case TimeRangeLast24Hours:
		return 24 * time.Hour
	default:
		return 0
	}
}

// ParseTimeRange accepts "all", "1h" and "24h" (case-insensitive).
func ParseTimeRange(s string) (TimeRange, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return TimeRangeAll, nil
	case "1h", "hour", "last1hour":
		return TimeRangeLastHour, nil
	case "24h", "day", "last24hours":
		return TimeRangeLast24Hours, nil
	default:
		return TimeRangeAll, fmt.Errorf("unknown time range %q (want all, 1h or 24h)", s)
	}
}

// ViewOptions narrows the session snapshot for one consumer.
type ViewOptions struct {
	Range TimeRange
	// Noise, when set, drops events the preprocessor rejects.
	Noise *NoiseFilter
	// SourceContains keeps only events whose source contains this text.
	SourceContains string
	// SourceNotContains drops events whose source contains this text.
	SourceNotContains string
}

// Session owns the lazily loaded event snapshot shared by analysis commands.
// The snapshot is loaded once and kept until Invalidate or Reload.
type Session struct {
	source EventSource
	store  EventStore
	logger *zap.SugaredLogger
	now    func() time.Time
	loc    *time.Location

	mu     sync.RWMutex
	events []EventRecord
	loaded bool
}

// NewSession creates a session over source. store may be nil, in which case
// Reload does not persist the snapshot.
func NewSession(source EventSource, store EventStore, logger *zap.SugaredLogger) *Session {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Session{
		source: source,
		store:  store,
		logger: logger,
		now:    time.Now,
		loc:    time.Local,
	}
}

// SetClock replaces the time source used for range views.
func (s *Session) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetLocation sets the zone used to read timestamps that carry none.
func (s *Session) SetLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// Location returns the zone range views read zone-less timestamps in.
func (s *Session) Location() *time.Location {
	return s.loc
}

// Load reads the snapshot from the source unless it is already loaded.
func (s *Session) Load(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	return s.loadLocked(ctx)
}

func (s *Session) loadLocked(ctx context.Context) error {
	events, err := s.source.Events(ctx)
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}
	s.events = events
	s.loaded = true
	s.logger.Infow("Event snapshot loaded", "events", len(events))
	return nil
}

// Invalidate drops the cached snapshot; the next access reloads it.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.events = nil
	s.loaded = false
	s.mu.Unlock()
}

// Reload refreshes the snapshot and persists it to the event store.
// A persistence failure is logged and does not fail the reload.
func (s *Session) Reload(ctx context.Context) (int, error) {
	return s.reload(ctx, false)
}

// ReloadReplacing refreshes the snapshot and makes it the only content of the
// event store, dropping pushed and historical events.
func (s *Session) ReloadReplacing(ctx context.Context) (int, error) {
	return s.reload(ctx, true)
}

func (s *Session) reload(ctx context.Context, replace bool) (int, error) {
	s.mu.Lock()
	s.events = nil
	s.loaded = false
	err := s.loadLocked(ctx)
	events := s.events
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	if s.store == nil {
		return len(events), nil
	}
	if replace {
		err = s.store.ReplaceEvents(ctx, events)
	} else if len(events) > 0 {
		err = s.store.SaveEvents(ctx, events)
	}
	if err != nil {
		s.logger.Warnw("Failed to persist event snapshot", "events", len(events), "replace", replace, "error", err)
	}
	return len(events), nil
}

// Events returns a copy of the full snapshot, loading it on first use.
func (s *Session) Events(ctx context.Context) ([]EventRecord, error) {
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EventRecord, len(s.events))
	copy(out, s.events)
	return out, nil
}

// View returns the snapshot narrowed by opts.
func (s *Session) View(ctx context.Context, opts ViewOptions) ([]EventRecord, error) {
	events, err := s.Events(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Noise != nil {
		events = opts.Noise.Filter(events)
	}
	return filterView(events, opts, s.now(), s.loc), nil
}

func filterView(events []EventRecord, opts ViewOptions, now time.Time, loc *time.Location) []EventRecord {
	include := strings.ToLower(strings.TrimSpace(opts.SourceContains))
	exclude := strings.ToLower(strings.TrimSpace(opts.SourceNotContains))
	window := opts.Range.Window()
	cutoff := now.Add(-window)

	out := make([]EventRecord, 0, len(events))
	for _, e := range events {
		src := strings.ToLower(e.Source)
		if include != "" && !strings.Contains(src, include) {
			continue
		}
		if exclude != "" && strings.TrimSpace(src) != "" && strings.Contains(src, exclude) {
			continue
		}
		if window > 0 {
			t, ok := ParseTimeIn(e.Time, loc)
			if !ok || t.Before(cutoff) || t.After(now) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
