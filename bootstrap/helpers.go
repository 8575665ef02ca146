package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DataDirectories defines the paths Sentra reads and writes.
type DataDirectories struct {
	Base       string // Base data directory (default: ./data)
	SQLite     string // SQLite database path
	EventsFile string // JSON event snapshot
}

// EnsureDataDirectories creates the base directory and the parent of the
// SQLite database, and checks both are writable.
func EnsureDataDirectories(dirs DataDirectories, sugar *zap.SugaredLogger) error {
	toCreate := []string{dirs.Base}
	if dirs.SQLite != "" && dirs.SQLite != ":memory:" {
		toCreate = append(toCreate, filepath.Dir(dirs.SQLite))
	}

	seen := make(map[string]bool, len(toCreate))
	for _, dir := range toCreate {
		if dir == "" {
			continue
		}
		absPath, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve absolute path for %s: %w", dir, err)
		}
		if seen[absPath] {
			continue
		}
		seen[absPath] = true

		if err := os.MkdirAll(absPath, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w\n"+
				"  Remediation: Ensure the parent directory exists and is writable\n"+
				"  Or point SENTRA_DATA_DIR somewhere writable", dir, err)
		}

		testFile := filepath.Join(absPath, ".sentra_write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
			return fmt.Errorf("directory %s is not writable: %w\n"+
				"  Remediation: Run 'chmod -R u+w %s'", dir, err, absPath)
		}
		os.Remove(testFile)

		sugar.Debugw("Data directory ready", "path", absPath)
	}
	return nil
}

// ClassifySQLiteError turns a SQLite open failure into an actionable message.
func ClassifySQLiteError(err error, dbPath string) string {
	if err == nil {
		return ""
	}

	absPath, _ := filepath.Abs(dbPath)
	parentDir := filepath.Dir(absPath)

	switch {
	case containsAny(err.Error(), "permission denied", "access denied"):
		return fmt.Sprintf("Permission denied accessing SQLite database at %s.\n"+
			"  Remediation:\n"+
			"  - Check file permissions: ls -la %s\n"+
			"  - Check directory permissions: ls -la %s",
			absPath, absPath, parentDir)

	case containsAny(err.Error(), "database is locked", "SQLITE_BUSY"):
		return fmt.Sprintf("SQLite database at %s is locked by another process.\n"+
			"  Remediation:\n"+
			"  - Check for a running 'sentra serve': ps aux | grep sentra\n"+
			"  - Check for lock files: ls -la %s*", absPath, absPath)

	case containsAny(err.Error(), "disk full", "no space", "SQLITE_FULL"):
		return fmt.Sprintf("Disk full - cannot write to SQLite database at %s.\n"+
			"  Remediation:\n"+
			"  - Check available disk space: df -h %s\n"+
			"  - Lower storage.event_retention_days to reduce data volume", absPath, parentDir)

	case containsAny(err.Error(), "corrupt", "malformed", "SQLITE_CORRUPT"):
		return fmt.Sprintf("SQLite database at %s appears to be corrupted.\n"+
			"  Remediation:\n"+
			"  - Check integrity: sqlite3 %s \"PRAGMA integrity_check;\"\n"+
			"  - Move the file aside; run history and stored events will be rebuilt from scratch",
			absPath, absPath)

	case containsAny(err.Error(), "no such file or directory", "cannot find the path"):
		return fmt.Sprintf("Cannot create SQLite database - path does not exist: %s.\n"+
			"  Remediation:\n"+
			"  - Create the parent directory: mkdir -p %s\n"+
			"  - Verify SENTRA_SQLITE_PATH or data_paths.sqlite_path", absPath, parentDir)

	case containsAny(err.Error(), "read-only"):
		return fmt.Sprintf("SQLite database location is on a read-only file system: %s.\n"+
			"  Remediation: move the database via SENTRA_SQLITE_PATH", absPath)
	}

	return fmt.Sprintf("Failed to initialize SQLite database at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure the directory %s exists and is writable\n"+
		"  - Check disk space and permissions", absPath, err, parentDir)
}

// containsAny reports whether s contains any of subs, ignoring case.
func containsAny(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
