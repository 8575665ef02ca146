package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"sentra/bootstrap"
	"sentra/core"
	"sentra/detect"
	"sentra/service"

	"github.com/spf13/cobra"
)

// newDetectCmd creates the 'detect' command
func newDetectCmd() *cobra.Command {
	var (
		rangeFlag string
		noise     bool
		persist   bool
		severity  string
		technique string
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run the threat rules over the current events",
		Long: `Classify the current event snapshot with the MITRE ATT&CK mapped rules.

Detections are recorded in the threat history unless --persist=false is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := core.ParseTimeRange(rangeFlag)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				applyNoise := app.Detection.NoiseEnabled
				if cmd.Flags().Changed("noise") {
					applyNoise = noise
				}

				stop := startSpinner("Running threat rules...")
				res, err := app.Threats.Detect(ctx, service.DetectOptions{
					Range:      rng,
					ApplyNoise: applyNoise,
					Persist:    persist,
				})
				stop()
				if err != nil {
					return fmt.Errorf("failed to run detection: %w", err)
				}

				res.Detections = service.FilterDetections(res.Detections, service.ThreatFilter{
					Severity:  severity,
					Technique: technique,
				}, time.Now(), app.Session.Location())

				return writeResult(cmd.OutOrStdout(), res, func(w io.Writer) {
					renderDetectResult(w, res)
				})
			})
		},
	}

	cmd.Flags().StringVar(&rangeFlag, "range", "all", "Time range: all, 1h or 24h")
	cmd.Flags().BoolVar(&noise, "noise", false, "Drop noise events before matching (default: preprocess.enabled)")
	cmd.Flags().BoolVar(&persist, "persist", true, "Record detections in the threat history")
	cmd.Flags().StringVar(&severity, "severity", "all", "Show only this severity: all, High, Medium or Low")
	cmd.Flags().StringVar(&technique, "technique", "", "Show only techniques containing this text")

	return cmd
}

// newThreatsCmd creates the 'threats' command group
func newThreatsCmd() *cobra.Command {
	threatsCmd := &cobra.Command{
		Use:   "threats",
		Short: "Inspect the recorded threat history",
	}

	threatsCmd.AddCommand(newThreatsHistoryCmd())
	threatsCmd.AddCommand(newThreatsTopCmd())
	threatsCmd.AddCommand(newThreatsRulesCmd())

	return threatsCmd
}

// newThreatsHistoryCmd creates the 'threats history' subcommand
func newThreatsHistoryCmd() *cobra.Command {
	var (
		rangeFlag string
		severity  string
		technique string
		limit     int
	)

	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"ls"},
		Short:   "List recorded detections, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := core.ParseTimeRange(rangeFlag)
			if err != nil {
				return err
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				detections, err := app.Threats.History(ctx, service.ThreatFilter{
					Range:     rng,
					Severity:  severity,
					Technique: technique,
					Limit:     limit,
				})
				if err != nil {
					return err
				}

				return writeResult(cmd.OutOrStdout(), detections, func(w io.Writer) {
					renderDetections(w, "THREAT HISTORY", detections)
				})
			})
		},
	}

	cmd.Flags().StringVar(&rangeFlag, "range", "all", "Time range: all, 1h or 24h")
	cmd.Flags().StringVar(&severity, "severity", "all", "Show only this severity: all, High, Medium or Low")
	cmd.Flags().StringVar(&technique, "technique", "", "Show only techniques containing this text")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum detections to show (default: storage.threat_history_limit)")

	return cmd
}

// newThreatsTopCmd creates the 'threats top' subcommand
func newThreatsTopCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the most frequently detected techniques",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				counts, err := app.Threats.TopTechniques(ctx, limit)
				if err != nil {
					return err
				}

				return writeResult(cmd.OutOrStdout(), counts, func(w io.Writer) {
					renderTechniqueCounts(w, counts)
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "Number of techniques to show")

	return cmd
}

// newThreatsRulesCmd creates the 'threats rules' subcommand
func newThreatsRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the detection rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				rules := app.Detection.Engine.Rules()
				return writeResult(cmd.OutOrStdout(), rules, func(w io.Writer) {
					renderRules(w, rules)
				})
			})
		},
	}
}

// newUsersCmd creates the 'users' command
func newUsersCmd() *cobra.Command {
	var rangeFlag string

	cmd := &cobra.Command{
		Use:   "users",
		Short: "Score account risk from the current events",
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := core.ParseTimeRange(rangeFlag)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				events, err := app.Session.View(ctx, core.ViewOptions{Range: rng})
				if err != nil {
					return fmt.Errorf("failed to load events: %w", err)
				}
				risks := detect.UserRisks(events)

				return writeResult(cmd.OutOrStdout(), risks, func(w io.Writer) {
					renderUserRisks(w, risks)
				})
			})
		},
	}

	cmd.Flags().StringVar(&rangeFlag, "range", "all", "Time range: all, 1h or 24h")

	return cmd
}
