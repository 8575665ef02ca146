package core

import "strings"

// DefaultSecurityKeywords keep informational events that still carry security meaning.
var DefaultSecurityKeywords = []string{
	"logon",
	"login",
	"authentication",
	"password",
	"lockout",
	"access denied",
	"privilege",
	"firewall",
	"policy",
	"permission",
	"audit",
}

// DefaultNoisySources are Application/System providers dropped before analysis.
var DefaultNoisySources = []string{
	"MsiInstaller",
	"Disk",
	"Service Control Manager",
	"DistributedCOM",
	"ESENT",
}

// NoiseFilterConfig configures the noise preprocessor.
type NoiseFilterConfig struct {
	SecurityKeywords []string
	NoisySources     []string
}

// NoiseFilter drops low-value informational and noisy platform events.
// It holds no mutable state and is safe for concurrent use.
type NoiseFilter struct {
	keywords []string
	sources  []string
}

// NewNoiseFilter creates a filter. Nil lists fall back to the defaults;
// an empty non-nil list disables that check.
func NewNoiseFilter(cfg NoiseFilterConfig) *NoiseFilter {
	keywords := cfg.SecurityKeywords
	if keywords == nil {
		keywords = DefaultSecurityKeywords
	}
	sources := cfg.NoisySources
	if sources == nil {
		sources = DefaultNoisySources
	}

	f := &NoiseFilter{
		keywords: make([]string, 0, len(keywords)),
		sources:  make([]string, 0, len(sources)),
	}
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			f.keywords = append(f.keywords, k)
		}
	}
	for _, s := range sources {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			f.sources = append(f.sources, s)
		}
	}
	return f
}

// Filter returns the events worth analyzing, preserving their order.
func (f *NoiseFilter) Filter(events []EventRecord) []EventRecord {
	out := make([]EventRecord, 0, len(events))
	for _, e := range events {
		if f.Keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Keep reports whether a single event survives the filter.
func (f *NoiseFilter) Keep(e EventRecord) bool {
	sev := strings.ToLower(strings.TrimSpace(e.Severity))
	if sev == "information" || sev == "informational" {
		if !containsAnyLower(strings.ToLower(e.Details), f.keywords) {
			return false
		}
	}

	typ := strings.ToLower(strings.TrimSpace(e.Type))
	if typ == "application" || typ == "system" {
		if containsAnyLower(strings.ToLower(e.Source), f.sources) {
			return false
		}
	}
	return true
}

// containsAnyLower expects both haystack and needles already lowercased.
func containsAnyLower(haystack string, needles []string) bool {
	if haystack == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
