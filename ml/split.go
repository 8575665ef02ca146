package ml

import (
	"time"

	"sentra/core"
)

// Windows is the baseline/target partition of an event history.
type Windows struct {
	Now           time.Time
	BaselineStart time.Time
	ScoringStart  time.Time
	Baseline      []core.EventRecord
	Target        []core.EventRecord
}

// Split partitions events into the baseline [now-baselineDays, now-targetWindow)
// and the target [now-targetWindow, now]. Events whose time does not parse
// are in neither.
func Split(events []core.EventRecord, now time.Time, baselineDays int, targetWindow time.Duration, loc *time.Location) Windows {
	w := Windows{
		Now:           now,
		BaselineStart: now.Add(-time.Duration(baselineDays) * 24 * time.Hour),
		ScoringStart:  now.Add(-targetWindow),
		Baseline:      make([]core.EventRecord, 0),
		Target:        make([]core.EventRecord, 0),
	}
	for _, e := range events {
		t, ok := core.ParseTimeIn(e.Time, loc)
		if !ok {
			continue
		}
		switch {
		case t.Before(w.BaselineStart) || t.After(now):
		case t.Before(w.ScoringStart):
			w.Baseline = append(w.Baseline, e)
		default:
			w.Target = append(w.Target, e)
		}
	}
	return w
}
