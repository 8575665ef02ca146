package storage

import "errors"

// Storage error constants
var (
	// ErrNotFound is a generic "not found" error
	ErrNotFound = errors.New("not found")

	// ErrRunNotFound is returned when no records exist for a run key
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidRunKey is returned when a run key is empty or malformed
	ErrInvalidRunKey = errors.New("invalid run key")

	// ErrInvalidWindowKey is returned when a record has no window key
	ErrInvalidWindowKey = errors.New("invalid window key")

	// ErrDatabaseClosed is returned when attempting to use a closed database connection
	ErrDatabaseClosed = errors.New("database is closed")

	// ErrInvalidLimit is returned for non-positive query limits
	ErrInvalidLimit = errors.New("limit must be positive")
)
