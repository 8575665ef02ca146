package ml

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"sentra/core"
)

// RunKeyLayout formats run keys at hour granularity, in UTC.
const RunKeyLayout = "2006-01-02-15"

// Row statuses shown when a run is compared with another.
const (
	StatusNone     = "—"
	StatusNew      = "New"
	StatusResolved = "Resolved"
	StatusRepeated = "Repeated"
)

// RunKey returns the hour-granularity identifier of a run started at t.
func RunKey(t time.Time) string {
	return t.UTC().Format(RunKeyLayout)
}

// ParseRunKey parses a run key back into the UTC start of its hour.
func ParseRunKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(RunKeyLayout, strings.TrimSpace(key), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run key %q: %w", key, err)
	}
	return t, nil
}

// BuildRunRecords pairs scored windows with their raw feature snapshot.
// Scored keys without a target row are skipped.
func BuildRunRecords(runKey string, createdAt time.Time, scored []core.ScoredAnomaly, targetRows []core.FeatureRow) []core.RunRecord {
	byKey := make(map[string][]float64, len(targetRows))
	for _, r := range targetRows {
		byKey[r.Key] = r.Features
	}

	records := make([]core.RunRecord, 0, len(scored))
	for _, s := range scored {
		f, ok := byKey[s.Key]
		if !ok {
			continue
		}
		rec := core.RunRecord{
			RunKey:    runKey,
			CreatedAt: createdAt,
			WindowKey: s.Key,
			Score:     s.Score,
			IsAnomaly: s.IsAnomaly,
		}
		copy(rec.Features[:], f)
		records = append(records, rec)
	}
	return records
}

// RunView selects which side of a comparison a table shows.
type RunView int

const (
	ViewA RunView = iota
	ViewB
)

// RunComparison holds the anomaly set algebra between runs A and B.
// Window keys compare case-insensitively.
type RunComparison struct {
	RunA     string   `json:"run_a"`
	RunB     string   `json:"run_b"`
	New      []string `json:"new"`      // anomalous in B only
	Resolved []string `json:"resolved"` // anomalous in A only
	Repeated []string `json:"repeated"` // anomalous in both

	inA map[string]struct{}
	inB map[string]struct{}
}

// CompareRuns compares the anomalous windows of two runs.
func CompareRuns(runA string, a []core.RunRecord, runB string, b []core.RunRecord) *RunComparison {
	setA, namesA := anomalySet(a)
	setB, namesB := anomalySet(b)

	c := &RunComparison{
		RunA:     runA,
		RunB:     runB,
		New:      make([]string, 0),
		Resolved: make([]string, 0),
		Repeated: make([]string, 0),
		inA:      setA,
		inB:      setB,
	}
	for k := range setB {
		if _, ok := setA[k]; !ok {
			c.New = append(c.New, namesB[k])
		}
	}
	for k := range setA {
		if _, ok := setB[k]; ok {
			c.Repeated = append(c.Repeated, namesA[k])
		} else {
			c.Resolved = append(c.Resolved, namesA[k])
		}
	}
	sort.Strings(c.New)
	sort.Strings(c.Resolved)
	sort.Strings(c.Repeated)
	return c
}

// UnionSize returns |A ∪ B| of the anomalous window sets.
func (c *RunComparison) UnionSize() int {
	n := len(c.inA)
	for k := range c.inB {
		if _, ok := c.inA[k]; !ok {
			n++
		}
	}
	return n
}

// StatusFor returns the comparison status of rec when viewing one side.
// A nil comparison means no compare run is selected.
func (c *RunComparison) StatusFor(view RunView, rec core.RunRecord) string {
	if c == nil || !rec.IsAnomaly {
		return StatusNone
	}
	k := strings.ToLower(rec.WindowKey)
	_, inA := c.inA[k]
	_, inB := c.inB[k]
	switch {
	case inA && inB:
		return StatusRepeated
	case view == ViewA && inA:
		return StatusResolved
	case view == ViewB && inB:
		return StatusNew
	default:
		return StatusNone
	}
}

func anomalySet(records []core.RunRecord) (map[string]struct{}, map[string]string) {
	set := make(map[string]struct{})
	names := make(map[string]string)
	for _, r := range records {
		if !r.IsAnomaly {
			continue
		}
		k := strings.ToLower(r.WindowKey)
		if _, seen := set[k]; !seen {
			set[k] = struct{}{}
			names[k] = r.WindowKey
		}
	}
	return set, names
}

// bucketLayouts are the accepted renderings of the hour part of a window key.
var bucketLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02 15:04:05",
}

// ParseWindowKey splits "user | MM-dd HH:00" into the user and the bucket
// start in loc. Keys without a year are placed in the year of now, or the
// previous year when that would put the bucket more than a day in the future.
func ParseWindowKey(key string, now time.Time, loc *time.Location) (string, time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	i := strings.LastIndex(key, "|")
	if i < 0 {
		return "", time.Time{}, false
	}
	user := strings.TrimSpace(key[:i])
	bucket := strings.TrimSpace(key[i+1:])
	if user == "" || bucket == "" {
		return "", time.Time{}, false
	}

	hasYear := len(bucket) >= 4 && isDigits(bucket[:4])
	candidate := bucket
	if !hasYear {
		candidate = fmt.Sprintf("%d-%s", now.In(loc).Year(), strings.ReplaceAll(bucket, "/", "-"))
	}
	for _, layout := range bucketLayouts {
		t, err := time.ParseInLocation(layout, candidate, loc)
		if err != nil {
			continue
		}
		if !hasYear && t.After(now.Add(24*time.Hour)) {
			t = t.AddDate(-1, 0, 0)
		}
		return user, t, true
	}
	return "", time.Time{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
