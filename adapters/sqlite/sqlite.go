// Package sqlite provides SQLite implementations of storage ports.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite database connection.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Set pragmas for performance
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &DB{DB: db}, nil
}

// Migrate creates the schema if it does not exist yet.
func (db *DB) Migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS usage_counters (
			month_key  TEXT NOT NULL,
			product    TEXT NOT NULL,
			count      INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (month_key, product)
		);

		CREATE TABLE IF NOT EXISTS bump_events (
			id         TEXT PRIMARY KEY,
			month_key  TEXT NOT NULL,
			product    TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			reason     TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_bump_events_month
			ON bump_events (month_key, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
