package detect

import (
	"testing"
	"time"

	"sentra/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSortDetections_ParsedTimeDescending tests chronological ordering across
// mixed timestamp formats
func TestSortDetections_ParsedTimeDescending(t *testing.T) {
	detections := []core.ThreatDetection{
		{Time: "2025-12-09 10:00:00", Name: "ten"},
		{Time: "garbage-a", Name: "ga"},
		{Time: "12/10/2025 09:00:00", Name: "next-day"},
		{Time: "2025-12-09T11:00:00", Name: "eleven"},
		{Time: "garbage-b", Name: "gb"},
		{Time: "2025-12-08 23:00:00", Name: "prev-day"},
	}

	SortDetections(detections, time.UTC)

	var names []string
	for _, d := range detections {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"next-day", "eleven", "ten", "prev-day", "gb", "ga"}, names)
}

// TestSortDetections_Stable tests equal timestamps keep their input order
func TestSortDetections_Stable(t *testing.T) {
	detections := []core.ThreatDetection{
		{Time: "2025-12-09 10:00:00", Name: "first"},
		{Time: "2025-12-09 10:00:00", Name: "second"},
		{Time: "2025-12-09 10:00:00", Name: "third"},
	}
	SortDetections(detections, time.UTC)
	assert.Equal(t, "first", detections[0].Name)
	assert.Equal(t, "second", detections[1].Name)
	assert.Equal(t, "third", detections[2].Name)
}

// TestSortDetections_Location tests zone-less times are ordered in the given location
func TestSortDetections_Location(t *testing.T) {
	tests := []struct {
		name string
		loc  *time.Location
		want []string
	}{
		// 10:00 at UTC+5 is 05:00Z
		{"ahead of UTC", time.FixedZone("UTC+5", 5*3600), []string{"zoned", "local"}},
		{"UTC", time.UTC, []string{"local", "zoned"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detections := []core.ThreatDetection{
				{Time: "2025-12-09 10:00:00", Name: "local"},
				{Time: "2025-12-09T07:00:00Z", Name: "zoned"},
			}
			SortDetections(detections, tt.loc)
			assert.Equal(t, tt.want, []string{detections[0].Name, detections[1].Name})
		})
	}
}

// TestEngine_Detect_Location tests the engine orders detections in its configured location
func TestEngine_Detect_Location(t *testing.T) {
	events := []core.EventRecord{
		{Time: "2025-12-09 10:00:00", Type: "Security", Details: "An account failed to log on.", User: "local"},
		{Time: "2025-12-09T07:00:00Z", Type: "Security", Details: "An account failed to log on.", User: "zoned"},
	}

	engine := newTestEngine()
	engine.SetLocation(time.FixedZone("UTC+5", 5*3600))
	got := engine.Detect(events)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-12-09T07:00:00Z", got[0].Time)

	engine.SetLocation(time.UTC)
	got = engine.Detect(events)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-12-09 10:00:00", got[0].Time)
}
