// Package db opens the remote store database, creates its schema and runs
// background maintenance against it.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// schema creates the tables of the store. Timestamps are unix seconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS plans (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    visibility TEXT NOT NULL DEFAULT 'private',
    share_token TEXT,
    share_expiry BIGINT,
    created_at BIGINT NOT NULL,
    is_template BOOLEAN NOT NULL DEFAULT FALSE,
    category TEXT NOT NULL DEFAULT ''
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS plans_share_token_idx ON plans (share_token)`,
	`CREATE INDEX IF NOT EXISTS plans_owner_idx ON plans (owner_id)`,
	`CREATE TABLE IF NOT EXISTS steps (
    id TEXT PRIMARY KEY,
    plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    step_order INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS steps_plan_idx ON steps (plan_id)`,
	`CREATE TABLE IF NOT EXISTS resources (
    id TEXT PRIMARY KEY,
    step_id TEXT NOT NULL REFERENCES steps(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    url TEXT NOT NULL,
    kind TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS completions (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    step_id TEXT NOT NULL,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    UNIQUE (owner_id, step_id)
)`,
	`CREATE TABLE IF NOT EXISTS owner_tiers (
    owner_id TEXT PRIMARY KEY,
    tier TEXT NOT NULL
)`,
}

// Open connects to the store selected by driver ("postgres" or "sqlite").
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	switch Dialect(driver) {
	case Postgres:
		db, err := InitPostgres(dsn)
		return db, Postgres, err
	case SQLite, "":
		db, err := InitSQLite(dsn)
		return db, SQLite, err
	default:
		return nil, "", fmt.Errorf("unknown database driver %q", driver)
	}
}

// InitPostgres opens a PostgreSQL connection and creates the schema.
func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitSQLite opens a SQLite database at path (":memory:" for an in-memory one),
// enables foreign keys and creates the schema.
func InitSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema (statement %d): %w", i, err)
		}
	}
	return nil
}
