package core

import (
	"context"
	"time"
)

// ============================================================================
// Collaborator interfaces
// ============================================================================
//
// Storage and acquisition are implemented in the storage and ingest packages.
// Analysis code depends only on these small interfaces.

// EventSource produces the current event snapshot (platform reader, JSON file, ...).
type EventSource interface {
	Events(ctx context.Context) ([]EventRecord, error)
}

// EventStore persists collected events for baseline history and drill-down.
type EventStore interface {
	// SaveEvents appends events. Events already stored are ignored.
	SaveEvents(ctx context.Context, events []EventRecord) error

	// ReplaceEvents deletes every stored event and stores the given snapshot.
	ReplaceEvents(ctx context.Context, events []EventRecord) error

	// GetEventsSince returns events whose timestamp is at or after since.
	GetEventsSince(ctx context.Context, since time.Time) ([]EventRecord, error)

	// GetEventsForUserWindow returns at most a bounded number of events for user
	// in [start, end), newest first.
	GetEventsForUserWindow(ctx context.Context, user string, start, end time.Time) ([]EventRecord, error)
}

// ThreatStore keeps the append-only threat detection history.
type ThreatStore interface {
	SaveThreats(ctx context.Context, detections []ThreatDetection) error
	LoadThreatHistory(ctx context.Context, limit int) ([]ThreatDetection, error)

	// TechniqueCounts returns the most frequent techniques in the history.
	TechniqueCounts(ctx context.Context, limit int) ([]TechniqueCount, error)
}

// AnomalyStore keeps anomaly run records.
type AnomalyStore interface {
	// SaveBatch stores records atomically with insert-or-ignore semantics on
	// (RunKey, WindowKey). Returns the number of rows actually inserted.
	SaveBatch(ctx context.Context, createdAt time.Time, records []RunRecord) (int, error)
	LoadRecent(ctx context.Context, limit int) ([]RunRecord, error)
	LoadByRunKey(ctx context.Context, runKey string) ([]RunRecord, error)
	LoadRunStats(ctx context.Context, limit int) ([]RunStat, error)
	LoadRecentRunKeys(ctx context.Context, limit int) ([]string, error)

	// LoadRange returns records with fromKey <= RunKey <= toKey, newest run first.
	LoadRange(ctx context.Context, fromKey, toKey string) ([]RunRecord, error)
}
