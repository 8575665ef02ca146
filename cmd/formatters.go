package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"sentra/core"
	"sentra/detect"
	"sentra/mitre"
	"sentra/ml"
	"sentra/service"

	"github.com/fatih/color"
)

const tableWidth = 110

// renderDetections displays threat detections in a formatted table
func renderDetections(w io.Writer, title string, detections []core.ThreatDetection) {
	if len(detections) == 0 {
		warningColor.Fprintln(w, "No threats detected")
		return
	}

	headerColor.Fprintf(w, "%s (%d)\n", title, len(detections))
	headerColor.Fprintln(w, strings.Repeat("=", tableWidth))
	fmt.Fprintf(w, "%-20s %-18s %-10s %-8s %-30s %s\n",
		"Time", "User", "Technique", "Severity", "Name", "Tactic")
	fmt.Fprintln(w, strings.Repeat("-", tableWidth))

	for _, d := range detections {
		fmt.Fprintf(w, "%-20s %-18s %-10s %-8s %-30s %s\n",
			truncate(d.Time, 20),
			truncate(orDash(d.User), 18),
			d.Technique,
			formatSeverity(d.Severity),
			truncate(d.Name, 30),
			d.Tactic)
	}

	fmt.Fprintln(w, strings.Repeat("=", tableWidth))
}

// renderDetectResult displays a detection pass with its counters
func renderDetectResult(w io.Writer, res *service.DetectResult) {
	renderDetections(w, "THREATS", res.Detections)
	if quiet {
		return
	}
	fmt.Fprintf(w, "Events scanned: %d", res.EventsScanned)
	if res.NoiseDropped > 0 {
		fmt.Fprintf(w, ", dropped as noise: %d", res.NoiseDropped)
	}
	fmt.Fprintf(w, ", high severity: %d\n", res.HighSeverityCount())
	switch {
	case res.PersistErr != nil:
		warningColor.Fprintf(w, "! Threat history not updated: %v\n", res.PersistErr)
	case res.Persisted:
		successColor.Fprintf(w, "✓ Recorded %d detections\n", len(res.Detections))
	}
}

// renderTechniqueCounts displays how often each technique was detected
func renderTechniqueCounts(w io.Writer, counts []core.TechniqueCount) {
	if len(counts) == 0 {
		warningColor.Fprintln(w, "No techniques recorded")
		return
	}

	headerColor.Fprintln(w, "TOP TECHNIQUES")
	headerColor.Fprintln(w, strings.Repeat("=", 100))
	fmt.Fprintf(w, "%-10s %-40s %-6s %s\n", "Technique", "Name", "Count", "Reference")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, c := range counts {
		fmt.Fprintf(w, "%-10s %-40s %-6d %s\n", c.Technique, truncate(c.Name, 40), c.Count, mitre.TechniqueURL(c.Technique))
	}
	fmt.Fprintln(w, strings.Repeat("=", 100))
}

// renderRules displays the rule table in evaluation order
func renderRules(w io.Writer, rules []detect.Rule) {
	headerColor.Fprintf(w, "DETECTION RULES (%d)\n", len(rules))
	headerColor.Fprintln(w, strings.Repeat("=", 120))
	fmt.Fprintf(w, "%-3s %-10s %-42s %-20s %-8s %s\n", "#", "Technique", "Name", "Tactic", "Severity", "Reference")
	fmt.Fprintln(w, strings.Repeat("-", 120))
	for i, r := range rules {
		fmt.Fprintf(w, "%-3d %-10s %-42s %-20s %-8s %s\n",
			i+1, r.Technique, truncate(r.Name, 42), r.Tactic, r.Severity, r.Reference)
	}
	fmt.Fprintln(w, strings.Repeat("=", 120))
}

// renderUserRisks displays per-account risk scores
func renderUserRisks(w io.Writer, risks []detect.UserRisk) {
	if len(risks) == 0 {
		warningColor.Fprintln(w, "No users found")
		return
	}

	headerColor.Fprintln(w, "USER RISK")
	headerColor.Fprintln(w, strings.Repeat("=", 90))
	fmt.Fprintf(w, "%-22s %-12s %-30s %-6s %-10s %s\n",
		"User", "Domain", "Email", "Risk", "Anomalies", "Events")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, r := range risks {
		fmt.Fprintf(w, "%-22s %-12s %-30s %-6s %-10d %d\n",
			truncate(r.DisplayName, 22),
			truncate(orDash(r.Domain), 12),
			truncate(r.Email, 30),
			formatRisk(r.RiskScore),
			r.Anomalies,
			r.Events)
	}
	fmt.Fprintln(w, strings.Repeat("=", 90))
}

// renderEvents displays raw event records
func renderEvents(w io.Writer, title string, events []core.EventRecord) {
	if len(events) == 0 {
		warningColor.Fprintln(w, "No events found")
		return
	}

	headerColor.Fprintf(w, "%s (%d)\n", title, len(events))
	headerColor.Fprintln(w, strings.Repeat("=", tableWidth))
	fmt.Fprintf(w, "%-20s %-12s %-12s %-18s %-16s %s\n",
		"Time", "Type", "Severity", "User", "Process", "Details")
	fmt.Fprintln(w, strings.Repeat("-", tableWidth))
	for _, e := range events {
		fmt.Fprintf(w, "%-20s %-12s %-12s %-18s %-16s %s\n",
			truncate(e.Time, 20),
			truncate(e.Type, 12),
			truncate(e.Severity, 12),
			truncate(orDash(e.User), 18),
			truncate(orDash(e.Process), 16),
			truncate(e.Details, 40))
	}
	fmt.Fprintln(w, strings.Repeat("=", tableWidth))
}

// renderScoreRun displays a recorded scoring run
func renderScoreRun(w io.Writer, run *service.ScoreRun) {
	printSection(w, "Run "+run.RunKey)
	renderPipelineSummary(w, run.Result)
	fmt.Fprintln(w)
	renderScored(w, run.Result.Scored, run.Reasons)

	if quiet {
		return
	}
	switch {
	case run.PersistErr != nil:
		warningColor.Fprintf(w, "! Run not recorded: %v\n", run.PersistErr)
	case len(run.Records) > 0:
		successColor.Fprintf(w, "✓ Recorded %d of %d windows\n", run.Inserted, len(run.Records))
	}
}

// renderPreview displays a scoring pass that was not recorded
func renderPreview(w io.Writer, res *ml.PipelineResult) {
	printSection(w, "Preview (not recorded)")
	renderPipelineSummary(w, res)
	fmt.Fprintln(w)
	renderScored(w, res.Scored, nil)
}

func renderPipelineSummary(w io.Writer, res *ml.PipelineResult) {
	printField(w, "Window", res.Window.String())
	printField(w, "Baseline events", fmt.Sprintf("%d (%d rows)", res.BaselineEvents, len(res.BaselineRows)))
	printField(w, "Target events", fmt.Sprintf("%d (%d windows)", res.TargetEvents, len(res.TargetRows)))
	printField(w, "Outcome", formatOutcome(res.Outcome, res.Fallback))
	printField(w, "Anomalies", fmt.Sprintf("%d", res.AnomalyCount))
}

func renderScored(w io.Writer, scored []core.ScoredAnomaly, reasons map[string][]string) {
	if len(scored) == 0 {
		warningColor.Fprintln(w, "No activity windows in the target range")
		return
	}

	headerColor.Fprintln(w, "WINDOWS")
	headerColor.Fprintln(w, strings.Repeat("=", tableWidth))
	fmt.Fprintf(w, "%-36s %-10s %-8s %s\n", "Window", "Score", "Anomaly", "Why")
	fmt.Fprintln(w, strings.Repeat("-", tableWidth))
	for _, s := range scored {
		fmt.Fprintf(w, "%-36s %-10.4f %-8s %s\n",
			truncate(s.Key, 36), s.Score, formatAnomaly(s.IsAnomaly), strings.Join(reasons[s.Key], "; "))
	}
	fmt.Fprintln(w, strings.Repeat("=", tableWidth))
}

// renderRunTable displays one run or a comparison of two runs
func renderRunTable(w io.Writer, table *service.RunTable) {
	renderRunRows(w, "RUN "+table.RunA, table.RowsA, table.Comparison != nil)
	if table.Comparison == nil {
		return
	}

	fmt.Fprintln(w)
	renderRunRows(w, "RUN "+table.RunB, table.RowsB, true)
	fmt.Fprintln(w)

	cmp := table.Comparison
	printSection(w, "Comparison")
	printField(w, "New", formatKeys(cmp.New))
	printField(w, "Resolved", formatKeys(cmp.Resolved))
	printField(w, "Repeated", formatKeys(cmp.Repeated))
}

func renderRunRows(w io.Writer, title string, rows []service.RunRow, withStatus bool) {
	headerColor.Fprintf(w, "%s (%d windows)\n", title, len(rows))
	headerColor.Fprintln(w, strings.Repeat("=", tableWidth))
	if withStatus {
		fmt.Fprintf(w, "%-36s %-10s %-8s %-10s %s\n", "Window", "Score", "Anomaly", "Status", "Features")
	} else {
		fmt.Fprintf(w, "%-36s %-10s %-8s %s\n", "Window", "Score", "Anomaly", "Features")
	}
	fmt.Fprintln(w, strings.Repeat("-", tableWidth))
	for _, r := range rows {
		if withStatus {
			fmt.Fprintf(w, "%-36s %-10.4f %-8s %-10s %s\n",
				truncate(r.WindowKey, 36), r.Score, formatAnomaly(r.IsAnomaly), formatStatus(r.Status), formatFeatures(r.Features))
			continue
		}
		fmt.Fprintf(w, "%-36s %-10.4f %-8s %s\n",
			truncate(r.WindowKey, 36), r.Score, formatAnomaly(r.IsAnomaly), formatFeatures(r.Features))
	}
	fmt.Fprintln(w, strings.Repeat("=", tableWidth))
}

// renderRunRecords displays stored run rows across runs
func renderRunRecords(w io.Writer, title string, records []core.RunRecord) {
	if len(records) == 0 {
		warningColor.Fprintln(w, "No recorded runs")
		return
	}

	headerColor.Fprintf(w, "%s (%d)\n", title, len(records))
	headerColor.Fprintln(w, strings.Repeat("=", tableWidth))
	fmt.Fprintf(w, "%-14s %-36s %-10s %-8s %s\n", "Run", "Window", "Score", "Anomaly", "Recorded")
	fmt.Fprintln(w, strings.Repeat("-", tableWidth))
	for _, r := range records {
		fmt.Fprintf(w, "%-14s %-36s %-10.4f %-8s %s\n",
			r.RunKey, truncate(r.WindowKey, 36), r.Score, formatAnomaly(r.IsAnomaly), formatTime(r.CreatedAt))
	}
	fmt.Fprintln(w, strings.Repeat("=", tableWidth))
}

// renderRunStats displays per-run anomaly counts
func renderRunStats(w io.Writer, stats []core.RunStat) {
	if len(stats) == 0 {
		warningColor.Fprintln(w, "No recorded runs")
		return
	}

	headerColor.Fprintln(w, "RUN STATS")
	headerColor.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "%-16s %-12s %s\n", "Run", "Anomalies", "Max Score")
	fmt.Fprintln(w, strings.Repeat("-", 50))
	for _, s := range stats {
		fmt.Fprintf(w, "%-16s %-12d %.4f\n", s.RunKey, s.AnomalyCount, s.MaxScore)
	}
	fmt.Fprintln(w, strings.Repeat("=", 50))
}

// renderRunKeys lists run keys, newest first
func renderRunKeys(w io.Writer, keys []string) {
	if len(keys) == 0 {
		warningColor.Fprintln(w, "No recorded runs")
		return
	}
	headerColor.Fprintln(w, "RUNS")
	for _, k := range keys {
		fmt.Fprintf(w, "  • %s\n", k)
	}
}

// renderDashboard displays the dashboard summary
func renderDashboard(w io.Writer, s *service.DashboardSummary) {
	headerColor.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	headerColor.Fprintf(w, "  Security Dashboard (%s)\n", s.Range)
	headerColor.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	printSection(w, "Overview")
	printField(w, "Security index", formatIndex(s.SecurityIndex))
	printField(w, "Total events", fmt.Sprintf("%d", s.TotalEvents))
	printField(w, "Failed logins", fmt.Sprintf("%d", s.FailedLogins))
	printField(w, "Severity anomalies", fmt.Sprintf("%d", s.SeverityAnomalies))
	printField(w, "Threats", fmt.Sprintf("%d", s.ThreatCount))
	fmt.Fprintln(w)

	printSection(w, "Top Techniques")
	if len(s.TopTechniques) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, t := range s.TopTechniques {
		fmt.Fprintf(w, "  %-10s %-40s %d\n", t.Technique, truncate(t.Name, 40), t.Count)
	}
	fmt.Fprintln(w)

	printSection(w, "Behavioral Anomalies")
	printField(w, "Outcome", formatOutcome(s.MLOutcome, false))
	printField(w, "Flagged windows", fmt.Sprintf("%d", s.MLAnomalies))
	for _, a := range s.TopWindows {
		fmt.Fprintf(w, "  %-36s %.4f %s\n", truncate(a.Key, 36), a.Score, formatAnomaly(a.IsAnomaly))
	}
	fmt.Fprintln(w)

	if len(s.RecentWarnings) > 0 {
		printSection(w, "Recent Warnings")
		for _, e := range s.RecentWarnings {
			fmt.Fprintf(w, "  %-20s %-12s %s\n", truncate(e.Time, 20), truncate(e.Severity, 12), truncate(e.Details, 60))
		}
		fmt.Fprintln(w)
	}

	if len(s.UserRisks) > 0 {
		printSection(w, "Riskiest Users")
		for _, r := range s.UserRisks {
			fmt.Fprintf(w, "  %-22s %s\n", truncate(r.DisplayName, 22), formatRisk(r.RiskScore))
		}
		fmt.Fprintln(w)
	}
}

// printSection prints a section header
func printSection(w io.Writer, title string) {
	headerColor.Fprintf(w, "  %s\n", title)
	headerColor.Fprintln(w, "  "+strings.Repeat("─", len([]rune(title))))
}

// printField prints a key-value field
func printField(w io.Writer, key, value string) {
	if value == "" {
		value = "(not set)"
	}
	fmt.Fprintf(w, "  %-25s %s\n", key+":", value)
}

func formatSeverity(severity string) string {
	switch strings.ToLower(severity) {
	case "high":
		return color.New(color.FgRed).Sprintf("%-8s", severity)
	case "medium":
		return color.New(color.FgYellow).Sprintf("%-8s", severity)
	case "low":
		return color.New(color.FgCyan).Sprintf("%-8s", severity)
	default:
		return severity
	}
}

func formatAnomaly(anomalous bool) string {
	if anomalous {
		return color.New(color.FgRed).Sprintf("%-8s", "YES")
	}
	return fmt.Sprintf("%-8s", "no")
}

func formatStatus(status string) string {
	switch status {
	case "New":
		return color.New(color.FgRed).Sprintf("%-10s", status)
	case "Resolved":
		return color.New(color.FgGreen).Sprintf("%-10s", status)
	case "Repeated":
		return color.New(color.FgYellow).Sprintf("%-10s", status)
	default:
		return fmt.Sprintf("%-10s", status)
	}
}

func formatOutcome(outcome ml.Outcome, fallback bool) string {
	text := string(outcome)
	if fallback {
		text += " (top-score fallback)"
	}
	if outcome == ml.OutcomeScored {
		return color.New(color.FgGreen).Sprint(text)
	}
	return color.New(color.FgYellow).Sprint(text)
}

func formatRisk(score int) string {
	switch {
	case score >= 70:
		return color.New(color.FgRed).Sprintf("%-6d", score)
	case score >= 40:
		return color.New(color.FgYellow).Sprintf("%-6d", score)
	default:
		return fmt.Sprintf("%-6d", score)
	}
}

func formatIndex(index int) string {
	switch {
	case index < 50:
		return errorColor.Sprintf("%d / 100", index)
	case index < 80:
		return warningColor.Sprintf("%d / 100", index)
	default:
		return successColor.Sprintf("%d / 100", index)
	}
}

func formatFeatures(f [core.FeatureCount]float64) string {
	parts := make([]string, len(f))
	for i, v := range f {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, " ")
}

func formatKeys(keys []string) string {
	if len(keys) == 0 {
		return "-"
	}
	return strings.Join(keys, ", ")
}

// formatTime formats a timestamp
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
