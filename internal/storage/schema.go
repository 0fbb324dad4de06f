package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 1

// OpenDB opens (creating if needed) the SQLite database at dbPath in WAL
// mode and brings its schema up to date.
func OpenDB(dbPath string) (*sql.DB, error) {
	parentDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrateSchema(db, dbPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func migrateSchema(db *sql.DB, dbPath string) error {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)

	var currentVersion int
	switch {
	case errors.Is(err, sql.ErrNoRows):
		currentVersion = 0
	case err != nil:
		return fmt.Errorf("checking schema_version table: %w", err)
	default:
		err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&currentVersion)
		if errors.Is(err, sql.ErrNoRows) {
			currentVersion = 0
		} else if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	if currentVersion > currentSchemaVersion {
		return fmt.Errorf(
			"database schema version %d is newer than this fieldwatch version supports (max: %d); upgrade fieldwatch or delete %s to start fresh",
			currentVersion, currentSchemaVersion, dbPath,
		)
	}

	if currentVersion < currentSchemaVersion {
		if err := applyMigrations(db, currentVersion); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
	}

	return nil
}

func applyMigrations(db *sql.DB, fromVersion int) error {
	if fromVersion == 0 {
		if err := migrateV0ToV1(db); err != nil {
			return fmt.Errorf("migration v0→v1: %w", err)
		}
	}

	return nil
}

// migrateV0ToV1 creates the initial schema. Rows keep the full record as a
// JSON document in data; the other columns exist for filtering and
// retention.
func migrateV0ToV1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []struct {
		name string
		sql  string
	}{
		{"schema_version table", `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`},
		{"schema version row", `INSERT INTO schema_version (version) VALUES (1)`},
		{"responses table", `
			CREATE TABLE IF NOT EXISTS responses (
				id TEXT PRIMARY KEY,
				survey_id TEXT NOT NULL,
				device_id TEXT,
				submitted_at TEXT NOT NULL,
				data TEXT NOT NULL
			)`},
		{"alerts table", `
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				dedup_key TEXT NOT NULL UNIQUE,
				type TEXT NOT NULL,
				severity TEXT NOT NULL,
				status TEXT NOT NULL,
				survey_id TEXT,
				detected_at TEXT NOT NULL,
				data TEXT NOT NULL
			)`},
		{"idx_responses_survey", `CREATE INDEX IF NOT EXISTS idx_responses_survey ON responses(survey_id)`},
		{"idx_responses_submitted", `CREATE INDEX IF NOT EXISTS idx_responses_submitted ON responses(submitted_at)`},
		{"idx_responses_device", `CREATE INDEX IF NOT EXISTS idx_responses_device ON responses(device_id)`},
		{"idx_alerts_status", `CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status)`},
		{"idx_alerts_detected", `CREATE INDEX IF NOT EXISTS idx_alerts_detected ON alerts(detected_at)`},
	}
	for _, st := range stmts {
		if _, err := tx.Exec(st.sql); err != nil {
			return fmt.Errorf("creating %s: %w", st.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
