package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DataPaths holds all data directory and file path configuration
// These paths can be overridden via environment variables
type DataPaths struct {
	// DataDir is the base data directory (SENTRA_DATA_DIR, default: ./data)
	DataDir string `mapstructure:"data_dir"`
	// SQLitePath is the SQLite database file path (SENTRA_SQLITE_PATH, default: ${DataDir}/sentra.db)
	SQLitePath string `mapstructure:"sqlite_path"`
	// EventsFile is the JSON event snapshot (SENTRA_EVENTS_FILE, default: ${DataDir}/events.json)
	EventsFile string `mapstructure:"events_file"`
}

// PreprocessConfig configures the noise preprocessor
type PreprocessConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	SecurityKeywords []string `mapstructure:"security_keywords"`
	NoisySources     []string `mapstructure:"noisy_sources"`
}

// MLConfig configures the baseline anomaly pipeline
type MLConfig struct {
	BaselineDays              int           `mapstructure:"baseline_days" validate:"min=1,max=90"`
	LiveWindow                time.Duration `mapstructure:"live_window" validate:"min=1m"`
	DashboardWindow           time.Duration `mapstructure:"dashboard_window" validate:"min=1m"`
	MinBaselineRows           int           `mapstructure:"min_baseline_rows" validate:"min=2"`
	Rank                      int           `mapstructure:"rank" validate:"min=1,max=6"`
	ZThreshold                float64       `mapstructure:"z_threshold" validate:"gt=0"`
	FallbackMinRows           int           `mapstructure:"fallback_min_rows" validate:"min=1"`
	ExcludeUnknownPerUser     bool          `mapstructure:"exclude_unknown_per_user"`
	ExcludeUnknownPerUserHour bool          `mapstructure:"exclude_unknown_per_user_hour"`
	ClampNormalized           bool          `mapstructure:"clamp_normalized"`
}

// StorageConfig holds query limits and cache sizes
type StorageConfig struct {
	UserWindowLimit    int `mapstructure:"user_window_limit" validate:"min=1,max=100000"`
	ThreatHistoryLimit int `mapstructure:"threat_history_limit" validate:"min=1,max=100000"`
	RunStatsLimit      int `mapstructure:"run_stats_limit" validate:"min=1,max=10000"`
	RecentRunKeys      int `mapstructure:"recent_run_keys" validate:"min=1,max=10000"`
	RunCacheSize       int `mapstructure:"run_cache_size" validate:"min=1,max=10000"`

	// Retention in days; 0 keeps rows forever.
	EventRetentionDays  int           `mapstructure:"event_retention_days" validate:"min=0"`
	ThreatRetentionDays int           `mapstructure:"threat_retention_days" validate:"min=0"`
	RunRetentionDays    int           `mapstructure:"run_retention_days" validate:"min=0"`
	RetentionInterval   time.Duration `mapstructure:"retention_interval" validate:"min=1m"`
}

// ServerConfig configures the serve command
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required,hostname_port"`
	ScoreInterval   time.Duration `mapstructure:"score_interval" validate:"min=1m"`
	IngestRateLimit int           `mapstructure:"ingest_rate_limit" validate:"min=0"`
}

// Config holds all configuration for Sentra
type Config struct {
	DataPaths  DataPaths        `mapstructure:"data_paths"`
	Preprocess PreprocessConfig `mapstructure:"preprocess"`
	ML         MLConfig         `mapstructure:"ml"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
}

func setDefaults() {
	viper.SetDefault("data_paths.data_dir", "./data")
	viper.SetDefault("data_paths.sqlite_path", "") // Empty = derive from data_dir
	viper.SetDefault("data_paths.events_file", "") // Empty = derive from data_dir

	viper.SetDefault("preprocess.enabled", false)
	viper.SetDefault("preprocess.security_keywords", []string{
		"logon", "login", "authentication", "password", "lockout", "access denied",
		"privilege", "firewall", "policy", "permission", "audit",
	})
	viper.SetDefault("preprocess.noisy_sources", []string{
		"MsiInstaller", "Disk", "Service Control Manager", "DistributedCOM", "ESENT",
	})

	viper.SetDefault("ml.baseline_days", 7)
	viper.SetDefault("ml.live_window", time.Hour)
	viper.SetDefault("ml.dashboard_window", 24*time.Hour)
	viper.SetDefault("ml.min_baseline_rows", 10)
	viper.SetDefault("ml.rank", 3)
	viper.SetDefault("ml.z_threshold", 2.0)
	viper.SetDefault("ml.fallback_min_rows", 3)
	viper.SetDefault("ml.exclude_unknown_per_user", true)
	viper.SetDefault("ml.exclude_unknown_per_user_hour", false)
	viper.SetDefault("ml.clamp_normalized", true)

	viper.SetDefault("storage.user_window_limit", 500)
	viper.SetDefault("storage.threat_history_limit", 1000)
	viper.SetDefault("storage.run_stats_limit", 50)
	viper.SetDefault("storage.recent_run_keys", 20)
	viper.SetDefault("storage.run_cache_size", 64)
	viper.SetDefault("storage.event_retention_days", 30)
	viper.SetDefault("storage.threat_retention_days", 90)
	viper.SetDefault("storage.run_retention_days", 90)
	viper.SetDefault("storage.retention_interval", "24h")

	viper.SetDefault("server.addr", "127.0.0.1:9464")
	viper.SetDefault("server.score_interval", time.Hour)
	viper.SetDefault("server.ingest_rate_limit", 10)
}

func loadFromEnv() {
	viper.SetEnvPrefix("SENTRA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Shorter names for path settings
	_ = viper.BindEnv("data_paths.data_dir", "SENTRA_DATA_DIR")
	_ = viper.BindEnv("data_paths.sqlite_path", "SENTRA_SQLITE_PATH")
	_ = viper.BindEnv("data_paths.events_file", "SENTRA_EVENTS_FILE")
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config.ResolveDataPaths()
	return &config, nil
}

// ResolveDataPaths resolves all data paths, deriving from DataDir if not explicitly set
func (c *Config) ResolveDataPaths() {
	dataDir := c.DataPaths.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}

	if c.DataPaths.SQLitePath == "" {
		c.DataPaths.SQLitePath = filepath.Join(dataDir, "sentra.db")
	} else if !filepath.IsAbs(c.DataPaths.SQLitePath) && c.DataPaths.SQLitePath != ":memory:" {
		// Relative to current directory, not data_dir
		c.DataPaths.SQLitePath = filepath.Clean(c.DataPaths.SQLitePath)
	}

	if c.DataPaths.EventsFile == "" {
		c.DataPaths.EventsFile = filepath.Join(dataDir, "events.json")
	} else if !filepath.IsAbs(c.DataPaths.EventsFile) {
		c.DataPaths.EventsFile = filepath.Clean(c.DataPaths.EventsFile)
	}

	c.DataPaths.DataDir = dataDir
}

// validateConfig runs struct tag validation, then the cross-field checks
func validateConfig(config *Config) error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return err
	}

	if config.ML.DashboardWindow < config.ML.LiveWindow {
		return fmt.Errorf("ml.dashboard_window (%v) must not be shorter than ml.live_window (%v)",
			config.ML.DashboardWindow, config.ML.LiveWindow)
	}
	if config.ML.LiveWindow >= time.Duration(config.ML.BaselineDays)*24*time.Hour {
		return fmt.Errorf("ml.live_window (%v) must be shorter than the %d day baseline",
			config.ML.LiveWindow, config.ML.BaselineDays)
	}
	if config.ML.DashboardWindow >= time.Duration(config.ML.BaselineDays)*24*time.Hour {
		return fmt.Errorf("ml.dashboard_window (%v) must be shorter than the %d day baseline",
			config.ML.DashboardWindow, config.ML.BaselineDays)
	}
	if config.ML.Rank >= config.ML.MinBaselineRows {
		return fmt.Errorf("ml.rank (%d) must be below ml.min_baseline_rows (%d)",
			config.ML.Rank, config.ML.MinBaselineRows)
	}
	if days := config.Storage.EventRetentionDays; days > 0 && days < config.ML.BaselineDays {
		return fmt.Errorf("storage.event_retention_days (%d) must cover the %d day baseline",
			days, config.ML.BaselineDays)
	}
	return nil
}
