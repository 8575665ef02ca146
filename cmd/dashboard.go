package cmd

import (
	"context"
	"io"

	"sentra/bootstrap"
	"sentra/core"

	"github.com/spf13/cobra"
)

// newDashboardCmd creates the 'dashboard' command
func newDashboardCmd() *cobra.Command {
	var rangeFlag string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize events, threats and behavioral anomalies",
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := core.ParseTimeRange(rangeFlag)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				stop := startSpinner("Building dashboard...")
				summary, err := app.Dashboard.Summary(ctx, rng)
				stop()
				if err != nil {
					return err
				}

				return writeResult(cmd.OutOrStdout(), summary, func(w io.Writer) {
					renderDashboard(w, summary)
				})
			})
		},
	}

	cmd.Flags().StringVar(&rangeFlag, "range", "24h", "Time range: all, 1h or 24h")

	return cmd
}
