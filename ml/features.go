package ml

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"sentra/core"
)

// Feature vector positions.
const (
	FeatureTotalEvents = iota
	FeatureFailedLogins
	FeatureErrors
	FeatureWarnings
	FeatureUniqueProcesses
	FeatureUniqueSources
)

// windowBucketLayout renders the hour bucket part of a window key.
const windowBucketLayout = "01-02 15"

// FeatureBuilderConfig controls grouping of events into feature rows.
type FeatureBuilderConfig struct {
	// ExcludeUnknownPerUser drops the "Unknown" user from per-user rows.
	ExcludeUnknownPerUser bool
	// ExcludeUnknownPerUserHour drops the "Unknown" user from per-user-hour rows.
	ExcludeUnknownPerUserHour bool
	// Location is used for hour buckets and zone-less timestamps.
	Location *time.Location
}

// DefaultFeatureBuilderConfig keeps "Unknown" in hourly windows but not in
// per-user rows.
func DefaultFeatureBuilderConfig() FeatureBuilderConfig {
	return FeatureBuilderConfig{
		ExcludeUnknownPerUser:     true,
		ExcludeUnknownPerUserHour: false,
		Location:                  time.Local,
	}
}

// FeatureBuilder aggregates events into six-feature behavioral vectors.
type FeatureBuilder struct {
	cfg FeatureBuilderConfig
}

// NewFeatureBuilder creates a feature builder
func NewFeatureBuilder(cfg FeatureBuilderConfig) *FeatureBuilder {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &FeatureBuilder{cfg: cfg}
}

// Location returns the zone used for hour buckets.
func (b *FeatureBuilder) Location() *time.Location {
	return b.cfg.Location
}

// BuildPerUser returns one row per user, ordered by user.
func (b *FeatureBuilder) BuildPerUser(events []core.EventRecord) []core.FeatureRow {
	groups := make(map[string]*featureAccumulator)
	for _, e := range events {
		user := e.UserOrUnknown()
		if b.cfg.ExcludeUnknownPerUser && user == core.UnknownUser {
			continue
		}
		acc := groups[user]
		if acc == nil {
			acc = newFeatureAccumulator()
			groups[user] = acc
		}
		acc.add(e)
	}
	return rowsFromGroups(groups)
}

// BuildPerUserHour returns one row per (user, hour) for events whose time
// parses and falls in [now-lastHours, now]. Keys look like "alice | 12-09 10:00".
func (b *FeatureBuilder) BuildPerUserHour(events []core.EventRecord, now time.Time, lastHours time.Duration) []core.FeatureRow {
	cutoff := now.Add(-lastHours)
	groups := make(map[string]*featureAccumulator)
	for _, e := range events {
		t, ok := core.ParseTimeIn(e.Time, b.cfg.Location)
		if !ok || t.Before(cutoff) || t.After(now) {
			continue
		}
		user := e.UserOrUnknown()
		if b.cfg.ExcludeUnknownPerUserHour && user == core.UnknownUser {
			continue
		}
		key := WindowKey(user, core.HourStart(t, b.cfg.Location))
		acc := groups[key]
		if acc == nil {
			acc = newFeatureAccumulator()
			groups[key] = acc
		}
		acc.add(e)
	}
	return rowsFromGroups(groups)
}

// WindowKey formats the identity of a user-hour bucket.
func WindowKey(user string, bucket time.Time) string {
	return fmt.Sprintf("%s | %s:00", user, bucket.Format(windowBucketLayout))
}

func rowsFromGroups(groups map[string]*featureAccumulator) []core.FeatureRow {
	rows := make([]core.FeatureRow, 0, len(groups))
	for key, acc := range groups {
		rows = append(rows, core.FeatureRow{Key: key, Features: acc.vector()})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

// featureAccumulator collects the per-group counters in one pass.
type featureAccumulator struct {
	total     int
	failed    int
	errors    int
	warnings  int
	processes map[string]struct{}
	sources   map[string]struct{}
}

func newFeatureAccumulator() *featureAccumulator {
	return &featureAccumulator{
		processes: make(map[string]struct{}),
		sources:   make(map[string]struct{}),
	}
}

func (a *featureAccumulator) add(e core.EventRecord) {
	a.total++
	if strings.Contains(strings.ToLower(e.Details), "failed") {
		a.failed++
	}
	sev := strings.TrimSpace(e.Severity)
	if strings.EqualFold(sev, core.SeverityError) ||
		strings.Contains(strings.ToLower(sev), "failure") ||
		strings.EqualFold(sev, core.SeverityCritical) {
		a.errors++
	}
	if strings.EqualFold(sev, core.SeverityWarning) {
		a.warnings++
	}
	if strings.TrimSpace(e.Process) != "" {
		a.processes[e.Process] = struct{}{}
	}
	if strings.TrimSpace(e.Source) != "" {
		a.sources[e.Source] = struct{}{}
	}
}

func (a *featureAccumulator) vector() []float64 {
	v := make([]float64, core.FeatureCount)
	v[FeatureTotalEvents] = float64(a.total)
	v[FeatureFailedLogins] = float64(a.failed)
	v[FeatureErrors] = float64(a.errors)
	v[FeatureWarnings] = float64(a.warnings)
	v[FeatureUniqueProcesses] = float64(len(a.processes))
	v[FeatureUniqueSources] = float64(len(a.sources))
	return v
}
