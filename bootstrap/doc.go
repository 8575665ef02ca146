// Package bootstrap builds the App every sentra command runs against.
//
// NewApp loads configuration, opens the SQLite database (migrations included),
// assembles the event source chain and the Session that owns the event
// snapshot, and creates the threat, anomaly and dashboard services. One-shot
// commands use the services directly and call Shutdown. The serve command also
// calls Start, which schedules live-window scoring and retention and serves the
// HTTP router, then blocks in WaitForShutdown.
//
//	app, err := bootstrap.NewApp(ctx, bootstrap.Options{LogLevel: zapcore.DebugLevel})
//	if err != nil {
//		return err
//	}
//	defer app.Shutdown()
//
//	run, err := app.Anomalies.Score(ctx, 0)
package bootstrap
