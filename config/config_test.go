package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestConfig returns a valid Config for testing
func newTestConfig() Config {
	return Config{
		ML: MLConfig{
			BaselineDays:    7,
			LiveWindow:      time.Hour,
			DashboardWindow: 24 * time.Hour,
			MinBaselineRows: 10,
			Rank:            3,
			ZThreshold:      2.0,
			FallbackMinRows: 3,
		},
		Storage: StorageConfig{
			UserWindowLimit:    500,
			ThreatHistoryLimit: 1000,
			RunStatsLimit:      50,
			RecentRunKeys:      20,
			RunCacheSize:       64,

			EventRetentionDays:  30,
			ThreatRetentionDays: 90,
			RunRetentionDays:    90,
			RetentionInterval:   24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:          "127.0.0.1:9464",
			ScoreInterval: time.Hour,
		},
	}
}

func loadIsolated(t *testing.T) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	return LoadConfig()
}

// TestLoadConfig_Defaults tests defaults without a config file
func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadIsolated(t)
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataPaths.DataDir)
	assert.Equal(t, filepath.Join("./data", "sentra.db"), cfg.DataPaths.SQLitePath)
	assert.Equal(t, filepath.Join("./data", "events.json"), cfg.DataPaths.EventsFile)

	assert.False(t, cfg.Preprocess.Enabled)
	assert.Contains(t, cfg.Preprocess.SecurityKeywords, "access denied")
	assert.Contains(t, cfg.Preprocess.NoisySources, "ESENT")

	assert.Equal(t, 7, cfg.ML.BaselineDays)
	assert.Equal(t, time.Hour, cfg.ML.LiveWindow)
	assert.Equal(t, 24*time.Hour, cfg.ML.DashboardWindow)
	assert.Equal(t, 10, cfg.ML.MinBaselineRows)
	assert.Equal(t, 3, cfg.ML.Rank)
	assert.Equal(t, 2.0, cfg.ML.ZThreshold)
	assert.Equal(t, 3, cfg.ML.FallbackMinRows)
	assert.True(t, cfg.ML.ExcludeUnknownPerUser)
	assert.False(t, cfg.ML.ExcludeUnknownPerUserHour)
	assert.True(t, cfg.ML.ClampNormalized)

	assert.Equal(t, 500, cfg.Storage.UserWindowLimit)
	assert.Equal(t, 64, cfg.Storage.RunCacheSize)
	assert.Equal(t, 30, cfg.Storage.EventRetentionDays)
	assert.Equal(t, 24*time.Hour, cfg.Storage.RetentionInterval)
	assert.Equal(t, time.Hour, cfg.Server.ScoreInterval)
	assert.Equal(t, 10, cfg.Server.IngestRateLimit)
}

// TestLoadConfig_EnvOverrides tests SENTRA_ environment variables
func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	dataDir := t.TempDir()
	t.Setenv("SENTRA_DATA_DIR", dataDir)
	t.Setenv("SENTRA_ML_BASELINE_DAYS", "14")
	t.Setenv("SENTRA_SERVER_SCORE_INTERVAL", "30m")
	t.Setenv("SENTRA_ML_EXCLUDE_UNKNOWN_PER_USER_HOUR", "true")

	cfg, err := loadIsolated(t)
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataPaths.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "sentra.db"), cfg.DataPaths.SQLitePath)
	assert.Equal(t, 14, cfg.ML.BaselineDays)
	assert.Equal(t, 30*time.Minute, cfg.Server.ScoreInterval)
	assert.True(t, cfg.ML.ExcludeUnknownPerUserHour)
}

// TestLoadConfig_File tests reading config.yaml from the working directory
func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := `
data_paths:
  events_file: logs/export.json
preprocess:
  enabled: true
  noisy_sources: [VSS]
ml:
  z_threshold: 2.5
  live_window: 2h
server:
  addr: "0.0.0.0:8080"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := loadIsolated(t)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("logs", "export.json"), cfg.DataPaths.EventsFile)
	assert.True(t, cfg.Preprocess.Enabled)
	assert.Equal(t, []string{"VSS"}, cfg.Preprocess.NoisySources)
	assert.Equal(t, 2.5, cfg.ML.ZThreshold)
	assert.Equal(t, 2*time.Hour, cfg.ML.LiveWindow)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
}

// TestLoadConfig_Invalid tests that bad files and values are rejected
func TestLoadConfig_Invalid(t *testing.T) {
	t.Run("malformed yaml", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("ml: [unclosed"), 0o600))
		_, err := loadIsolated(t)
		assert.Error(t, err)
	})

	t.Run("validation failure", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("SENTRA_ML_RANK", "0")
		_, err := loadIsolated(t)
		assert.Error(t, err)
	})
}

// TestValidateConfig tests tag and cross-field validation
func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero baseline days", func(c *Config) { c.ML.BaselineDays = 0 }, true},
		{"negative threshold", func(c *Config) { c.ML.ZThreshold = -1 }, true},
		{"rank above features", func(c *Config) { c.ML.Rank = 7 }, true},
		{"tiny live window", func(c *Config) { c.ML.LiveWindow = time.Second }, true},
		{"bad addr", func(c *Config) { c.Server.Addr = "localhost" }, true},
		{"negative rate limit", func(c *Config) { c.Server.IngestRateLimit = -1 }, true},
		{"zero cache", func(c *Config) { c.Storage.RunCacheSize = 0 }, true},
		{"retention disabled", func(c *Config) { c.Storage.EventRetentionDays = 0 }, false},
		{"retention shorter than baseline", func(c *Config) { c.Storage.EventRetentionDays = 3 }, true},
		{"tiny retention interval", func(c *Config) { c.Storage.RetentionInterval = time.Second }, true},
		{"dashboard shorter than live", func(c *Config) { c.ML.DashboardWindow = 30 * time.Minute }, true},
		{"live window covers baseline", func(c *Config) {
			c.ML.BaselineDays = 1
			c.ML.LiveWindow = 24 * time.Hour
		}, true},
		{"rank not below min rows", func(c *Config) { c.ML.MinBaselineRows = 3 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig()
			tt.mutate(&cfg)
			err := validateConfig(&cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestResolveDataPaths tests path derivation
func TestResolveDataPaths(t *testing.T) {
	tests := []struct {
		name       string
		paths      DataPaths
		wantSQLite string
		wantEvents string
	}{
		{"empty", DataPaths{}, filepath.Join("./data", "sentra.db"), filepath.Join("./data", "events.json")},
		{"custom dir", DataPaths{DataDir: "/var/lib/sentra"}, "/var/lib/sentra/sentra.db", "/var/lib/sentra/events.json"},
		{"explicit relative", DataPaths{SQLitePath: "db/../db/s.db", EventsFile: "./e.json"}, filepath.Join("db", "s.db"), "e.json"},
		{"memory", DataPaths{SQLitePath: ":memory:"}, ":memory:", filepath.Join("./data", "events.json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{DataPaths: tt.paths}
			cfg.ResolveDataPaths()
			assert.Equal(t, tt.wantSQLite, cfg.DataPaths.SQLitePath)
			assert.Equal(t, tt.wantEvents, cfg.DataPaths.EventsFile)
			assert.NotEmpty(t, cfg.DataPaths.DataDir)
		})
	}
}
