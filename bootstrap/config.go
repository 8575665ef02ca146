package bootstrap

import (
	"fmt"
	"io"
	"os"

	"sentra/config"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger builds the colored console logger. Logs go to w (stderr when nil)
// so command output on stdout stays machine readable.
func InitLogger(w io.Writer, level zapcore.Level, color bool) (*zap.Logger, *zap.SugaredLogger, error) {
	if w == nil {
		w = os.Stderr
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if color {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the application configuration.
func InitConfig(sugar *zap.SugaredLogger) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if viper.ConfigFileUsed() == "" {
		sugar.Debug("No config file found, using defaults and env vars")
	}

	sugar.Debugw("Data paths configuration",
		"data_dir", cfg.DataPaths.DataDir,
		"sqlite_path", cfg.DataPaths.SQLitePath,
		"events_file", cfg.DataPaths.EventsFile)

	sugar.Debugw("Config loaded",
		"baseline_days", cfg.ML.BaselineDays,
		"live_window", cfg.ML.LiveWindow,
		"z_threshold", cfg.ML.ZThreshold,
		"preprocess", cfg.Preprocess.Enabled)

	return cfg, nil
}

// DataDirectoriesFromConfig creates DataDirectories from configuration.
func DataDirectoriesFromConfig(cfg *config.Config) DataDirectories {
	return DataDirectories{
		Base:       cfg.DataPaths.DataDir,
		SQLite:     cfg.DataPaths.SQLitePath,
		EventsFile: cfg.DataPaths.EventsFile,
	}
}
