// Package cmd provides the command-line interface for Sentra.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"sentra/bootstrap"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	outputJSON bool
	outputYAML bool
	configFile string
	noColor    bool
	quiet      bool
	verbose    bool
)

const defaultTimeout = 5 * time.Minute

// newApp builds the application for one command. Replaced in tests.
var newApp = func(ctx context.Context, level zapcore.Level) (*bootstrap.App, error) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	}
	return bootstrap.NewApp(ctx, bootstrap.Options{
		LogLevel: level,
		Color:    !noColor,
	})
}

// NewRootCmd creates the sentra command with all subcommands.
func NewRootCmd() *cobra.Command {
	outputJSON, outputYAML, noColor, quiet, verbose = false, false, false, false, false
	configFile = ""

	rootCmd := &cobra.Command{
		Use:   "sentra",
		Short: "Host event threat detection and behavioral anomaly scoring",
		Long: `Sentra classifies host events with MITRE ATT&CK mapped rules and scores
user-hour activity windows against a rolling baseline.

Events are read from the configured JSON snapshot (or the built-in sample set)
and can be pushed over HTTP while 'sentra serve' is running.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				color.NoColor = true
			}
			if outputJSON && outputYAML {
				return fmt.Errorf("--json and --yaml are mutually exclusive")
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&outputYAML, "yaml", false, "Output in YAML format")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newDetectCmd())
	rootCmd.AddCommand(newThreatsCmd())
	rootCmd.AddCommand(newUsersCmd())
	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newDashboardCmd())
	rootCmd.AddCommand(newServeCmd())

	return rootCmd
}

// Execute runs the root command and reports errors on stderr.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func logLevel() zapcore.Level {
	if verbose {
		return zapcore.DebugLevel
	}
	return zapcore.WarnLevel
}

// withApp builds the application, runs fn and shuts the application down.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, defaultTimeout)
	defer cancel()

	app, err := newApp(ctx, logLevel())
	if err != nil {
		return err
	}
	defer app.Shutdown()

	return fn(ctx, app)
}

// writeResult prints v as JSON or YAML when requested, otherwise calls table.
func writeResult(w io.Writer, v interface{}, table func(w io.Writer)) error {
	switch {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	}
	table(w)
	return nil
}

// startSpinner shows progress on stderr for interactive table output.
func startSpinner(suffix string) func() {
	if outputJSON || outputYAML || quiet {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriterFile(os.Stderr))
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}
