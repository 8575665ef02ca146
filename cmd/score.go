package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"sentra/bootstrap"
	"sentra/storage"

	"github.com/spf13/cobra"
)

// newScoreCmd creates the 'score' command
func newScoreCmd() *cobra.Command {
	var (
		window time.Duration
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score recent activity windows against the baseline",
		Long: `Build hourly per-user feature vectors, fit the baseline and flag target
windows whose reconstruction error is unusually high.

Each run is recorded under a run key (yyyy-MM-dd-HH) unless --dry-run is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if window < 0 {
				return fmt.Errorf("--window must not be negative")
			}

			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if dryRun {
					stop := startSpinner("Scoring activity windows...")
					res, err := app.Anomalies.Preview(ctx, window)
					stop()
					if err != nil {
						return err
					}
					return writeResult(cmd.OutOrStdout(), res, func(w io.Writer) {
						renderPreview(w, res)
					})
				}

				stop := startSpinner("Scoring activity windows...")
				run, err := app.Anomalies.Score(ctx, window)
				stop()
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), run, func(w io.Writer) {
					renderScoreRun(w, run)
				})
			})
		},
	}

	cmd.Flags().DurationVar(&window, "window", 0, "Target window length (default: ml.live_window)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Score without recording a run")

	return cmd
}

// newRunsCmd creates the 'runs' command group
func newRunsCmd() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and compare recorded scoring runs",
	}

	runsCmd.AddCommand(newRunsListCmd())
	runsCmd.AddCommand(newRunsShowCmd())
	runsCmd.AddCommand(newRunsCompareCmd())
	runsCmd.AddCommand(newRunsStatsCmd())
	runsCmd.AddCommand(newRunsRangeCmd())
	runsCmd.AddCommand(newRunsRecentCmd())

	return runsCmd
}

// newRunsListCmd creates the 'runs list' subcommand
func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent run keys, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				keys, err := app.Anomalies.RecentRuns(ctx)
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), keys, func(w io.Writer) {
					renderRunKeys(w, keys)
				})
			})
		},
	}
}

// newRunsShowCmd creates the 'runs show' subcommand
func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-key>",
		Short: "Show the windows recorded by one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				table, err := app.Anomalies.Show(ctx, args[0])
				if err != nil {
					return runError(args[0], err)
				}
				return writeResult(cmd.OutOrStdout(), table, func(w io.Writer) {
					renderRunTable(w, table)
				})
			})
		},
	}
}

// newRunsCompareCmd creates the 'runs compare' subcommand
func newRunsCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <run-a> <run-b>",
		Short: "Compare the anomalies of two runs",
		Long: `Compare two runs by window key. Anomalies only in run B are New, anomalies
only in run A are Resolved and anomalies in both are Repeated.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				table, err := app.Anomalies.Compare(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), table, func(w io.Writer) {
					renderRunTable(w, table)
				})
			})
		},
	}
}

// newRunsStatsCmd creates the 'runs stats' subcommand
func newRunsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show anomaly counts and peak scores per run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				stats, err := app.Anomalies.Stats(ctx)
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), stats, func(w io.Writer) {
					renderRunStats(w, stats)
				})
			})
		},
	}
}

// newRunsRangeCmd creates the 'runs range' subcommand
func newRunsRangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "range <from-run> <to-run>",
		Short: "List recorded windows of runs between two run keys (inclusive)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				records, err := app.Anomalies.Range(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), records, func(w io.Writer) {
					renderRunRecords(w, "RUNS "+args[0]+" .. "+args[1], records)
				})
			})
		},
	}
}

// newRunsRecentCmd creates the 'runs recent' subcommand
func newRunsRecentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "List the most recently recorded windows across runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				records, err := app.Anomalies.Recent(ctx)
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), records, func(w io.Writer) {
					renderRunRecords(w, "RECENT WINDOWS", records)
				})
			})
		},
	}
}

// runError turns storage lookup failures into user-facing messages.
func runError(runKey string, err error) error {
	switch {
	case errors.Is(err, storage.ErrRunNotFound):
		return fmt.Errorf("no recorded run %q (see 'sentra runs list')", runKey)
	case errors.Is(err, storage.ErrInvalidRunKey):
		return fmt.Errorf("invalid run key %q (want yyyy-MM-dd-HH)", runKey)
	default:
		return err
	}
}
