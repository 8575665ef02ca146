package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sentra/config"
	"sentra/core"
	"sentra/ingest"
	"sentra/service"
	"sentra/util/goroutine"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	metricsCollectionInterval = 15 * time.Second
	serverShutdownTimeout     = 5 * time.Second
	serviceShutdownTimeout    = 15 * time.Second
)

// Options control logger construction and time zone handling.
type Options struct {
	LogWriter io.Writer     // default: stderr
	LogLevel  zapcore.Level // default: info
	Color     bool
	// Location is used for zone-less timestamps and hour buckets (default: time.Local).
	Location *time.Location
}

// App wires configuration, storage, detection and services together.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger
	Dirs   DataDirectories

	Storage   *StorageComponents
	Detection *DetectionComponents
	Source    *ingest.FallbackSource
	Session   *core.Session

	Threats   *service.ThreatService
	Anomalies *service.AnomalyService
	Dashboard *service.DashboardService

	server    *http.Server
	serviceWg sync.WaitGroup
	cancel    context.CancelFunc
	stopped   <-chan struct{}
	closeOnce sync.Once
}

// NewApp loads configuration and initializes all components.
func NewApp(ctx context.Context, opts Options) (*App, error) {
	logger, sugar, err := InitLogger(opts.LogWriter, opts.LogLevel, opts.Color)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	return NewAppWithConfig(ctx, cfg, logger, opts)
}

// NewAppWithConfig initializes all components from an already loaded config.
func NewAppWithConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sugar := logger.Sugar()
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	app := &App{
		Config: cfg,
		Logger: logger,
		Sugar:  sugar,
		Dirs:   DataDirectoriesFromConfig(cfg),
	}

	if err := EnsureDataDirectories(app.Dirs, sugar); err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	sqlite, err := InitSQLite(app.Dirs, sugar)
	if err != nil {
		return nil, err
	}

	storageComponents, err := InitStorage(sqlite, cfg, loc, sugar)
	if err != nil {
		_ = sqlite.Close()
		return nil, err
	}
	app.Storage = storageComponents

	app.Detection = InitDetection(cfg, loc, sugar)

	app.Source = ingest.NewFallbackSource(sugar,
		ingest.NewJSONFileSource(app.Dirs.EventsFile, sugar),
		ingest.SampleSource{},
	)
	app.Session = core.NewSession(app.Source, storageComponents.Events, sugar)
	app.Session.SetLocation(loc)

	app.Threats = service.NewThreatService(
		app.Session,
		app.Detection.Noise,
		app.Detection.Engine,
		storageComponents.Threats,
		sugar,
	)
	app.Threats.SetHistoryLimit(cfg.Storage.ThreatHistoryLimit)

	app.Anomalies = service.NewAnomalyService(
		&service.AnomalyServiceConfig{
			BaselineDays:  cfg.ML.BaselineDays,
			LiveWindow:    cfg.ML.LiveWindow,
			RunStatsLimit: cfg.Storage.RunStatsLimit,
			RecentRunKeys: cfg.Storage.RecentRunKeys,
			Logger:        sugar,
		},
		app.Session,
		storageComponents.Events,
		storageComponents.Anomalies,
		app.Detection.Pipeline,
	)

	app.Dashboard = service.NewDashboardService(
		app.Session,
		app.Detection.Engine,
		app.Anomalies,
		cfg.ML.DashboardWindow,
		sugar,
	)

	sugar.Debug("Application initialized")
	return app, nil
}

// Start launches the long-running parts used by serve: retention, pool
// metrics, scheduled scoring and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.stopped = runCtx.Done()

	a.Storage.Retention.Start(runCtx)
	a.Storage.SQLite.StartMetricsCollection(runCtx, metricsCollectionInterval)

	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		defer goroutine.Recover("scheduled-scoring", a.Sugar)
		goroutine.RunEvery(runCtx, "score", a.Config.Server.ScoreInterval, a.Sugar, a.scheduledScore)
	}()

	a.server = &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		defer goroutine.Recover("http-server", a.Sugar)
		a.Sugar.Infow("HTTP server listening", "addr", a.Config.Server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorw("HTTP server failed", "error", err)
			cancel()
		}
	}()

	return nil
}

// scheduledScore reloads the snapshot and records one live-window run.
func (a *App) scheduledScore(ctx context.Context) error {
	if _, err := a.Session.Reload(ctx); err != nil {
		a.Sugar.Warnw("Snapshot reload failed, scoring stored history", "error", err)
	}

	run, err := a.Anomalies.Score(ctx, 0)
	if err != nil {
		return fmt.Errorf("scheduled scoring failed: %w", err)
	}
	a.Sugar.Infow("Scheduled scoring completed",
		"run_key", run.RunKey,
		"windows", len(run.Records),
		"anomalies", run.Result.AnomalyCount,
		"outcome", run.Result.Outcome,
		"inserted", run.Inserted)
	return nil
}

// WaitForShutdown blocks until a shutdown signal arrives, ctx is done or
// the HTTP server stops on its own.
func (a *App) WaitForShutdown(ctx context.Context) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		a.Sugar.Infow("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	case <-a.stopped:
	}
}

// Shutdown stops background work and closes the database. Safe to call
// more than once.
func (a *App) Shutdown() {
	a.closeOnce.Do(func() {
		a.Sugar.Debug("Shutting down...")

		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			if err := a.server.Shutdown(ctx); err != nil {
				a.Sugar.Errorw("Failed to stop HTTP server", "error", err)
			}
			cancel()
		}

		if a.cancel != nil {
			a.cancel()
		}

		done := make(chan struct{})
		go func() {
			a.serviceWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(serviceShutdownTimeout):
			a.Sugar.Warn("Service goroutine shutdown timed out")
		}

		if err := a.Storage.Close(); err != nil {
			a.Sugar.Errorw("Failed to close storage", "error", err)
		}

		a.Sugar.Debug("Shutdown complete")
		_ = a.Logger.Sync()
	})
}
