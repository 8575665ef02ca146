package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"sentra/core"
	"sentra/detect"
	"sentra/ml"

	"go.uber.org/zap"
)

const (
	// Rates are capped so a noisy host cannot drive the index to zero.
	maxAnomalyRate = 0.30
	maxThreatRate  = 0.10

	anomalyRateWeight = 0.5
	threatRateWeight  = 1.5

	dashboardTopN          = 3
	dashboardRecentWarning = 10
)

// DashboardSummary is the overview of the current snapshot.
type DashboardSummary struct {
	GeneratedAt       time.Time             `json:"generated_at" yaml:"generated_at"`
	Range             string                `json:"range" yaml:"range"`
	TotalEvents       int                   `json:"total_events" yaml:"total_events"`
	FailedLogins      int                   `json:"failed_logins" yaml:"failed_logins"`
	SeverityAnomalies int                   `json:"severity_anomalies" yaml:"severity_anomalies"`
	ThreatCount       int                   `json:"threat_count" yaml:"threat_count"`
	TopTechniques     []core.TechniqueCount `json:"top_techniques" yaml:"top_techniques"`
	SecurityIndex     int                   `json:"security_index" yaml:"security_index"`
	MLAnomalies       int                   `json:"ml_anomalies" yaml:"ml_anomalies"`
	MLOutcome         ml.Outcome            `json:"ml_outcome" yaml:"ml_outcome"`
	TopWindows        []core.ScoredAnomaly  `json:"top_windows" yaml:"top_windows"`
	RecentWarnings    []core.EventRecord    `json:"recent_warnings" yaml:"recent_warnings"`
	UserRisks         []detect.UserRisk     `json:"user_risks,omitempty" yaml:"user_risks,omitempty"`
}

// DashboardService builds the dashboard summary.
type DashboardService struct {
	session   *core.Session
	engine    *detect.Engine
	anomalies *AnomalyService
	window    time.Duration
	now       func() time.Time
	logger    *zap.SugaredLogger
}

// NewDashboardService creates a DashboardService. anomalies may be nil, in
// which case the ML section stays empty. window is the ML target window
// (default 24h).
func NewDashboardService(
	session *core.Session,
	engine *detect.Engine,
	anomalies *AnomalyService,
	window time.Duration,
	logger *zap.SugaredLogger,
) *DashboardService {
	if session == nil {
		panic("session is required")
	}
	if engine == nil {
		panic("engine is required")
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DashboardService{
		session:   session,
		engine:    engine,
		anomalies: anomalies,
		window:    window,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source.
func (d *DashboardService) SetClock(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// Summary computes the dashboard for the snapshot narrowed to rng.
// An ML failure is logged and leaves the ML section empty.
func (d *DashboardService) Summary(ctx context.Context, rng core.TimeRange) (*DashboardSummary, error) {
	events, err := d.session.View(ctx, core.ViewOptions{Range: rng})
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	sum := &DashboardSummary{
		GeneratedAt:    d.now(),
		Range:          rng.String(),
		TotalEvents:    len(events),
		TopWindows:     []core.ScoredAnomaly{},
		RecentWarnings: []core.EventRecord{},
	}
	for _, e := range events {
		if strings.Contains(strings.ToLower(e.Details), "failed") {
			sum.FailedLogins++
		}
		if IsSeverityAnomaly(e) {
			sum.SeverityAnomalies++
			if len(sum.RecentWarnings) < dashboardRecentWarning {
				sum.RecentWarnings = append(sum.RecentWarnings, e)
			}
		}
	}

	detections := d.engine.Detect(events)
	sum.ThreatCount = len(detections)
	sum.TopTechniques = CountTechniques(detections, dashboardTopN)
	sum.SecurityIndex = SecurityIndex(sum.TotalEvents, sum.SeverityAnomalies, sum.ThreatCount)
	sum.UserRisks = detect.UserRisks(events)

	if d.anomalies != nil {
		res, err := d.anomalies.Preview(ctx, d.window)
		if err != nil {
			d.logger.Warnw("Dashboard anomaly scoring failed", "error", err)
		} else {
			sum.MLAnomalies = res.AnomalyCount
			sum.MLOutcome = res.Outcome
			top := res.Scored
			if len(top) > dashboardTopN {
				top = top[:dashboardTopN]
			}
			sum.TopWindows = append(sum.TopWindows, top...)
		}
	}
	return sum, nil
}

// IsSeverityAnomaly reports Warning and Error severities and any severity
// mentioning a failure.
func IsSeverityAnomaly(e core.EventRecord) bool {
	sev := strings.TrimSpace(e.Severity)
	return strings.EqualFold(sev, core.SeverityWarning) ||
		strings.EqualFold(sev, core.SeverityError) ||
		strings.Contains(strings.ToLower(sev), "failure")
}

// SecurityIndex returns 100 minus the weighted, capped anomaly and threat
// rates in percent, clamped to [0, 100].
func SecurityIndex(total, anomalies, threats int) int {
	if total <= 0 {
		total = 1
	}
	anomalyRate := math.Min(float64(anomalies)/float64(total), maxAnomalyRate)
	threatRate := math.Min(float64(threats)/float64(total), maxThreatRate)

	risk := anomalyRate*anomalyRateWeight + threatRate*threatRateWeight
	index := 100 - int(risk*100)
	if index < 0 {
		return 0
	}
	if index > 100 {
		return 100
	}
	return index
}
