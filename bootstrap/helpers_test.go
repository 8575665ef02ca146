package bootstrap

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestContainsAny(t *testing.T) {
	tests := []struct {
		s        string
		subs     []string
		expected bool
	}{
		{"Hello World", []string{"hello"}, true},
		{"Hello World", []string{"xyz", "WORLD"}, true},
		{"Hello World", []string{"xyz"}, false},
		{"", []string{"abc"}, false},
		{"abc", nil, false},
		{"SQLITE_BUSY: database is locked", []string{"sqlite_busy"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			assert.Equal(t, tt.expected, containsAny(tt.s, tt.subs...))
		})
	}
}

// TestClassifySQLiteError tests each failure family maps to its remediation text
func TestClassifySQLiteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"nil error", nil, ""},
		{"permission", errors.New("open db: permission denied"), "Permission denied"},
		{"locked", errors.New("database is locked (5) (SQLITE_BUSY)"), "locked by another process"},
		{"disk full", errors.New("write: no space left on device"), "Disk full"},
		{"corrupt", errors.New("database disk image is malformed"), "corrupted"},
		{"missing dir", errors.New("open: no such file or directory"), "path does not exist"},
		{"read only", errors.New("attempt to write a read-only database"), "read-only file system"},
		{"other", errors.New("something odd"), "Failed to initialize SQLite database"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := ClassifySQLiteError(tt.err, "data/sentra.db")
			if tt.contains == "" {
				assert.Empty(t, msg)
				return
			}
			assert.Contains(t, msg, tt.contains)
			assert.Contains(t, msg, "sentra.db")
		})
	}
}

// TestEnsureDataDirectories tests base and database directories are created
func TestEnsureDataDirectories(t *testing.T) {
	base := t.TempDir()
	dirs := DataDirectories{
		Base:       filepath.Join(base, "data"),
		SQLite:     filepath.Join(base, "db", "sentra.db"),
		EventsFile: filepath.Join(base, "data", "events.json"),
	}

	require.NoError(t, EnsureDataDirectories(dirs, zap.NewNop().Sugar()))

	for _, dir := range []string{dirs.Base, filepath.Dir(dirs.SQLite)} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		_, err = os.Stat(filepath.Join(dir, ".sentra_write_test"))
		assert.True(t, os.IsNotExist(err), "write-check file is removed")
	}
}

// TestEnsureDataDirectories_InMemory tests an in-memory database needs no directory
func TestEnsureDataDirectories_InMemory(t *testing.T) {
	base := filepath.Join(t.TempDir(), "data")
	require.NoError(t, EnsureDataDirectories(DataDirectories{Base: base, SQLite: ":memory:"}, zap.NewNop().Sugar()))
	_, err := os.Stat(base)
	assert.NoError(t, err)
}

// TestInitLogger tests level filtering and the output writer
func TestInitLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, sugar, err := InitLogger(&buf, zapcore.WarnLevel, false)
	require.NoError(t, err)
	require.NotNil(t, logger)

	sugar.Info("hidden")
	sugar.Warnw("shown", "run_key", "2025-12-09-10")
	_ = logger.Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "2025-12-09-10")
}
