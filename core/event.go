package core

import (
	"strings"
	"time"
)

// Severity labels as they appear on collected events.
const (
	SeverityInformation = "Information"
	SeverityWarning     = "Warning"
	SeverityError       = "Error"
	SeverityCritical    = "Critical"
	SeverityHigh        = "High"
	SeverityMedium      = "Medium"
)

// UnknownUser is the placeholder identity for events without a resolvable user.
const UnknownUser = "Unknown"

// EventRecord is a single log event as collected from a host.
// All fields are free text; Time is parsed lazily where a time is needed.
type EventRecord struct {
	Time     string `json:"time" yaml:"time"`
	Type     string `json:"type" yaml:"type"`
	Severity string `json:"severity" yaml:"severity"`
	User     string `json:"user" yaml:"user"`
	Process  string `json:"process" yaml:"process"`
	Details  string `json:"details" yaml:"details"`
	Source   string `json:"source" yaml:"source"`
}

// UserOrUnknown returns the event user, or UnknownUser when blank.
func (e EventRecord) UserOrUnknown() string {
	if strings.TrimSpace(e.User) == "" {
		return UnknownUser
	}
	return e.User
}

// ThreatDetection is one rule hit produced by the threat rule engine.
type ThreatDetection struct {
	ID        string `json:"id" yaml:"id"`
	Time      string `json:"time" yaml:"time"`
	Technique string `json:"technique" yaml:"technique"`
	Name      string `json:"name" yaml:"name"`
	Tactic    string `json:"tactic" yaml:"tactic"`
	Severity  string `json:"severity" yaml:"severity"`
	User      string `json:"user" yaml:"user"`
	Source    string `json:"source" yaml:"source"`
	Details   string `json:"details" yaml:"details"`
}

// FeatureCount is the width of every behavioral feature vector.
const FeatureCount = 6

// FeatureNames labels the feature vector positions, in order.
var FeatureNames = [FeatureCount]string{
	"Total events",
	"Failed logins",
	"Errors/Failures",
	"Warnings",
	"Unique processes",
	"Unique sources",
}

// FeatureRow is a keyed behavioral feature vector.
// Key is either a user name or a "user | MM-dd HH:00" window key.
type FeatureRow struct {
	Key      string    `json:"key" yaml:"key"`
	Features []float64 `json:"features" yaml:"features"`
}

// ScoredAnomaly is the PCA reconstruction score of one target row.
type ScoredAnomaly struct {
	Key       string  `json:"key" yaml:"key"`
	Score     float64 `json:"score" yaml:"score"`
	IsAnomaly bool    `json:"is_anomaly" yaml:"is_anomaly"`
}

// RunRecord is one persisted row of an anomaly scoring run.
type RunRecord struct {
	RunKey    string                `json:"run_key" yaml:"run_key"`
	CreatedAt time.Time             `json:"created_at" yaml:"created_at"`
	WindowKey string                `json:"window_key" yaml:"window_key"`
	Score     float64               `json:"score" yaml:"score"`
	IsAnomaly bool                  `json:"is_anomaly" yaml:"is_anomaly"`
	Features  [FeatureCount]float64 `json:"features" yaml:"features"`
}

// RunStat aggregates one run for trend displays.
type RunStat struct {
	RunKey       string  `json:"run_key" yaml:"run_key"`
	AnomalyCount int     `json:"anomaly_count" yaml:"anomaly_count"`
	MaxScore     float64 `json:"max_score" yaml:"max_score"`
}

// TechniqueCount is how often a technique appears in detections.
type TechniqueCount struct {
	Technique string `json:"technique" yaml:"technique"`
	Name      string `json:"name" yaml:"name"`
	Count     int    `json:"count" yaml:"count"`
}
