package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"sentra/bootstrap"
	"sentra/core"
	"sentra/storage"

	"github.com/spf13/cobra"
)

// newEventsCmd creates the 'events' command group
func newEventsCmd() *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Load and browse host events",
	}

	eventsCmd.AddCommand(newEventsListCmd())
	eventsCmd.AddCommand(newEventsReloadCmd())
	eventsCmd.AddCommand(newEventsUserWindowCmd())

	return eventsCmd
}

// newEventsListCmd creates the 'events list' subcommand
func newEventsListCmd() *cobra.Command {
	var (
		rangeFlag string
		noise     bool
		source    string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List events of the current snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := core.ParseTimeRange(rangeFlag)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				opts := core.ViewOptions{Range: rng, SourceContains: source}
				if noise {
					opts.Noise = app.Detection.Noise
				}
				events, err := app.Session.View(ctx, opts)
				if err != nil {
					return fmt.Errorf("failed to load events: %w", err)
				}

				return writeResult(cmd.OutOrStdout(), events, func(w io.Writer) {
					renderEvents(w, "EVENTS", events)
				})
			})
		},
	}

	cmd.Flags().StringVar(&rangeFlag, "range", "all", "Time range: all, 1h or 24h")
	cmd.Flags().BoolVar(&noise, "noise", false, "Drop noise events")
	cmd.Flags().StringVar(&source, "source", "", "Show only events whose source contains this text")

	return cmd
}

// newEventsReloadCmd creates the 'events reload' subcommand
func newEventsReloadCmd() *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Re-read the event source and store the snapshot",
		Long: `Re-read the event source and store the snapshot. Stored events are kept
and the snapshot is added to them; --replace drops every stored event first,
including pushed events and the scoring baseline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				reload := app.Session.Reload
				if replace {
					reload = app.Session.ReloadReplacing
				}

				stop := startSpinner("Loading events...")
				n, err := reload(ctx)
				stop()
				if err != nil {
					return fmt.Errorf("failed to reload events: %w", err)
				}

				result := map[string]int{"events": n}
				return writeResult(cmd.OutOrStdout(), result, func(w io.Writer) {
					successColor.Fprintf(w, "✓ Loaded %d events\n", n)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Replace stored events with the snapshot")

	return cmd
}

// newEventsUserWindowCmd creates the 'events user-window' subcommand
func newEventsUserWindowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user-window <window-key>",
		Short: "Show stored events behind an activity window",
		Long: `Show the stored events of the user and hour a window key names,
for example 'sentra events user-window "alice | 12-09 10:00"'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				events, err := app.Anomalies.RelatedEvents(ctx, args[0])
				if errors.Is(err, storage.ErrInvalidWindowKey) {
					return fmt.Errorf("invalid window key %q (want \"user | MM-dd HH:00\")", args[0])
				}
				if err != nil {
					return err
				}

				return writeResult(cmd.OutOrStdout(), events, func(w io.Writer) {
					renderEvents(w, args[0], events)
				})
			})
		},
	}
}
