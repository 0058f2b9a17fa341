// Package db provides the local embedded store: replica records, persisted
// connection/auth state, and the conflict journal.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB with sync-core configuration.
type DB struct {
	*sql.DB
}

// Open opens the local embedded SQLite store. The database is opened with
// WAL mode for concurrent reads and a single writer, matching SQLite's
// write model.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "synccore.db")

	// modernc.org/sqlite is pure Go, no CGO.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	wrapped := &DB{db}
	if err := wrapped.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return wrapped, nil
}

// OpenInMemory opens a private in-memory store, used by tests and by
// callers that run without a data directory.
func OpenInMemory() (*DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)

	wrapped := &DB{db}
	if err := wrapped.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return wrapped, nil
}

// migrate creates the embedded store schema.
func (db *DB) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS state_records (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			persisted_at INTEGER NOT NULL,
			schema_version INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS records (
			tbl TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (tbl, id)
		);`,
		`CREATE TABLE IF NOT EXISTS conflict_log (
			id TEXT PRIMARY KEY,
			tbl TEXT NOT NULL,
			record_id TEXT NOT NULL,
			conflict_fields TEXT NOT NULL,
			strategy TEXT NOT NULL,
			detected_at INTEGER NOT NULL,
			resolved_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conflict_log_record
			ON conflict_log (tbl, record_id);`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
