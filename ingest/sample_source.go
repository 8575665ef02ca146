package ingest

import (
	"context"

	"sentra/core"
	"sentra/metrics"
)

// SampleSource serves a small built-in event set so the tool works without
// any collected data.
type SampleSource struct{}

// Name identifies the source in logs and metrics
func (SampleSource) Name() string {
	return "sample"
}

// Events returns a fresh copy of the sample events
func (s SampleSource) Events(ctx context.Context) ([]core.EventRecord, error) {
	events := []core.EventRecord{
		{
			Time:     "2025-12-09 10:15:00",
			Type:     "Security",
			Severity: core.SeverityInformation,
			User:     `CORP\jdoe`,
			Process:  "explorer.exe",
			Details:  "User logon successful.",
		},
		{
			Time:     "2025-12-09 10:45:22",
			Type:     "Sysmon",
			Severity: core.SeverityWarning,
			User:     `CORP\svc_backup`,
			Process:  "powershell.exe",
			Details:  "Script executed from unusual directory.",
		},
		{
			Time:     "2025-12-09 09:03:10",
			Type:     "Application",
			Severity: core.SeverityError,
			User:     `CORP\asmith`,
			Process:  "chrome.exe",
			Details:  "Crash reported in browser process.",
		},
		{
			Time:     "2025-12-09 08:30:00",
			Type:     "Security",
			Severity: core.SeverityError,
			User:     `CORP\jdoe`,
			Process:  "winlogon.exe",
			Details:  "Multiple failed login attempts.",
		},
	}
	metrics.EventsIngested.WithLabelValues(s.Name()).Add(float64(len(events)))
	return events, nil
}
