package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"sentra/core"
)

type staticSource struct {
	events []core.EventRecord
	err    error
}

func (s *staticSource) Events(ctx context.Context) ([]core.EventRecord, error) {
	return s.events, s.err
}

type memoryEventStore struct {
	mu     sync.Mutex
	events []core.EventRecord

	windowUser  string
	windowStart time.Time
	windowEnd   time.Time
}

func (m *memoryEventStore) SaveEvents(ctx context.Context, events []core.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *memoryEventStore) ReplaceEvents(ctx context.Context, events []core.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append([]core.EventRecord(nil), events...)
	return nil
}

func (m *memoryEventStore) GetEventsSince(ctx context.Context, since time.Time) ([]core.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.EventRecord
	for _, e := range m.events {
		if t, ok := core.ParseTimeIn(e.Time, time.UTC); ok && !t.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryEventStore) GetEventsForUserWindow(ctx context.Context, user string, start, end time.Time) ([]core.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windowUser, m.windowStart, m.windowEnd = user, start, end
	var out []core.EventRecord
	for _, e := range m.events {
		t, ok := core.ParseTimeIn(e.Time, time.UTC)
		if ok && strings.EqualFold(e.User, user) && !t.Before(start) && t.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

type memoryThreatStore struct {
	saved   []core.ThreatDetection
	saveErr error
}

func (m *memoryThreatStore) SaveThreats(ctx context.Context, detections []core.ThreatDetection) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, detections...)
	return nil
}

func (m *memoryThreatStore) LoadThreatHistory(ctx context.Context, limit int) ([]core.ThreatDetection, error) {
	out := m.saved
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryThreatStore) TechniqueCounts(ctx context.Context, limit int) ([]core.TechniqueCount, error) {
	return CountTechniques(m.saved, limit), nil
}

type memoryAnomalyStore struct {
	records []core.RunRecord
	saveErr error
}

func (m *memoryAnomalyStore) SaveBatch(ctx context.Context, createdAt time.Time, records []core.RunRecord) (int, error) {
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	inserted := 0
	for _, r := range records {
		dup := false
		for _, have := range m.records {
			if have.RunKey == r.RunKey && have.WindowKey == r.WindowKey {
				dup = true
				break
			}
		}
		if !dup {
			m.records = append(m.records, r)
			inserted++
		}
	}
	return inserted, nil
}

func (m *memoryAnomalyStore) LoadRecent(ctx context.Context, limit int) ([]core.RunRecord, error) {
	out := append([]core.RunRecord(nil), m.records...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryAnomalyStore) LoadByRunKey(ctx context.Context, runKey string) ([]core.RunRecord, error) {
	var out []core.RunRecord
	for _, r := range m.records {
		if r.RunKey == runKey {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryAnomalyStore) LoadRunStats(ctx context.Context, limit int) ([]core.RunStat, error) {
	byKey := make(map[string]*core.RunStat)
	for _, r := range m.records {
		s := byKey[r.RunKey]
		if s == nil {
			s = &core.RunStat{RunKey: r.RunKey}
			byKey[r.RunKey] = s
		}
		if r.IsAnomaly {
			s.AnomalyCount++
		}
		if r.Score > s.MaxScore {
			s.MaxScore = r.Score
		}
	}
	out := make([]core.RunStat, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunKey > out[j].RunKey })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryAnomalyStore) LoadRecentRunKeys(ctx context.Context, limit int) ([]string, error) {
	stats, _ := m.LoadRunStats(ctx, limit)
	keys := make([]string, len(stats))
	for i, s := range stats {
		keys[i] = s.RunKey
	}
	return keys, nil
}

func (m *memoryAnomalyStore) LoadRange(ctx context.Context, fromKey, toKey string) ([]core.RunRecord, error) {
	var out []core.RunRecord
	for _, r := range m.records {
		if r.RunKey >= fromKey && r.RunKey <= toKey {
			out = append(out, r)
		}
	}
	return out, nil
}
