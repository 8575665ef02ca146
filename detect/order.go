package detect

import (
	"sort"
	"strings"
	"time"

	"sentra/core"
)

// SortDetections orders detections newest first by parsed event time.
// Detections whose time does not parse go last, ordered by raw text descending.
// The sort is stable so equal times keep input order. Times without a zone
// are read in loc.
func SortDetections(detections []core.ThreatDetection, loc *time.Location) {
	type key struct {
		t  time.Time
		ok bool
	}
	keys := make([]key, len(detections))
	for i, d := range detections {
		t, ok := core.ParseTimeIn(d.Time, loc)
		keys[i] = key{t: t, ok: ok}
	}

	idx := make([]int, len(detections))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		switch {
		case ka.ok && kb.ok:
			return ka.t.After(kb.t)
		case ka.ok != kb.ok:
			return ka.ok
		default:
			return detections[idx[a]].Time > detections[idx[b]].Time
		}
	})

	sorted := make([]core.ThreatDetection, len(detections))
	for i, j := range idx {
		sorted[i] = detections[j]
	}
	copy(detections, sorted)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
