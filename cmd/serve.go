package cmd

import (
	"context"

	"sentra/bootstrap"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

// newServeCmd creates the 'serve' command
func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled scoring and the HTTP API",
		Long: `Run until interrupted: score the live window every server.score_interval,
apply retention and serve metrics, health, push ingest and read-only views
on server.addr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			level := zapcore.InfoLevel
			if verbose {
				level = zapcore.DebugLevel
			}
			app, err := newApp(ctx, level)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			if addr != "" {
				app.Config.Server.Addr = addr
			}
			return serve(ctx, cmd, app)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")

	return cmd
}

func serve(ctx context.Context, cmd *cobra.Command, app *bootstrap.App) error {
	if err := app.Start(ctx); err != nil {
		return err
	}
	if !quiet {
		successColor.Fprintf(cmd.ErrOrStderr(), "✓ Serving on %s (Ctrl+C to stop)\n", app.Config.Server.Addr)
	}
	app.WaitForShutdown(ctx)
	return nil
}
