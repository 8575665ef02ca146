package storage

import "database/sql"

// Schema versions of the sentra database
const (
	schemaBase = iota + 1
	schemaRunKeys
	schemaQueryIndexes
)

// sqliteMigrations returns the schema history of the sentra database.
func sqliteMigrations() []Migration {
	return []Migration{
		{Version: schemaBase, Name: "create_base_schema", Up: migrateBaseSchema},
		// ml_anomalies tables from before hourly run keys
		{Version: schemaRunKeys, Name: "anomaly_run_keys", Up: migrateAnomalyRunKeys},
		{Version: schemaQueryIndexes, Name: "query_indexes", Up: migrateQueryIndexes},
	}
}

func migrateBaseSchema(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fingerprint TEXT NOT NULL UNIQUE,
		time TEXT NOT NULL DEFAULT '',
		time_unix INTEGER, -- unix milliseconds, NULL when time does not parse
		type TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL DEFAULT '',
		user TEXT NOT NULL DEFAULT '',
		process TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		collected_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS threats (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		time TEXT NOT NULL DEFAULT '',
		time_unix INTEGER,
		user TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		technique TEXT NOT NULL,
		name TEXT NOT NULL,
		tactic TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		recorded_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ml_anomalies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at INTEGER NOT NULL, -- unix nanoseconds
		window_key TEXT NOT NULL,
		score REAL NOT NULL,
		is_anomaly INTEGER NOT NULL DEFAULT 0,
		total_events REAL NOT NULL DEFAULT 0,
		failed_logins REAL NOT NULL DEFAULT 0,
		errors REAL NOT NULL DEFAULT 0,
		warnings REAL NOT NULL DEFAULT 0,
		unique_processes REAL NOT NULL DEFAULT 0,
		unique_sources REAL NOT NULL DEFAULT 0
	);
	`)
	return err
}

// migrateAnomalyRunKeys upgrades ml_anomalies tables created before runs
// were keyed by hour.
func migrateAnomalyRunKeys(tx *sql.Tx) error {
	if err := addColumnIfNotExists(tx, "ml_anomalies", "run_key", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		UPDATE ml_anomalies
		SET run_key = strftime('%Y-%m-%d-%H', created_at / 1000000000, 'unixepoch')
		WHERE run_key = ''
	`); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		DELETE FROM ml_anomalies
		WHERE id NOT IN (SELECT MIN(id) FROM ml_anomalies GROUP BY run_key, window_key)
	`); err != nil {
		return err
	}
	return createIndexIfNotExists(tx, "ux_ml_anomalies_run_window", "ml_anomalies", true, "run_key", "window_key")
}

func migrateQueryIndexes(tx *sql.Tx) error {
	indexes := []struct {
		name, table string
		columns     []string
	}{
		{"idx_events_time_unix", "events", []string{"time_unix"}},
		{"idx_events_user_time", "events", []string{"user", "time_unix"}},
		{"idx_threats_recorded_at", "threats", []string{"recorded_at"}},
		{"idx_threats_technique", "threats", []string{"technique"}},
		{"idx_ml_anomalies_created_at", "ml_anomalies", []string{"created_at"}},
	}
	for _, idx := range indexes {
		if err := createIndexIfNotExists(tx, idx.name, idx.table, false, idx.columns...); err != nil {
			return err
		}
	}
	return nil
}
