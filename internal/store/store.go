// Package store provides the persistent metric-value store backing the
// telemetry pipeline, using SQLite for durability across batch job runs.
//
// A row in metric_values is an already-aggregated statistic for exactly one
// half-open time bucket [valid_from, valid_to). The composite natural key
// (metric, valid_from, valid_to, service, resource, event_type, label) is the
// sole write-conflict mechanism: re-processing a window replaces rows in
// place instead of accumulating.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Config holds configuration for the metric store.
type Config struct {
	DBPath string
}

// DefaultConfig returns the default store location under a data directory.
func DefaultConfig(dataDir string) Config {
	return Config{DBPath: filepath.Join(dataDir, "geomon.db")}
}

// Store provides persistent metric-value storage.
type Store struct {
	db     *sql.DB
	config Config
}

// Open creates (or opens) the store at the configured path and ensures the
// schema exists.
func Open(config Config) (*Store, error) {
	dir := filepath.Dir(config.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// WAL mode for better concurrent read access; single writer suits SQLite.
	db, err := sql.Open("sqlite", config.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open metric database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, config: config}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug().Str("path", config.DBPath).Msg("Metric store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		-- Aggregated metric values, one row per series per bucket
		CREATE TABLE IF NOT EXISTS metric_values (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			metric TEXT NOT NULL,
			valid_from INTEGER NOT NULL,
			valid_to INTEGER NOT NULL,
			service TEXT NOT NULL,
			resource_type TEXT NOT NULL DEFAULT '',
			resource_name TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL DEFAULT '',
			label TEXT NOT NULL DEFAULT '',
			label_user TEXT NOT NULL DEFAULT '',
			value TEXT NOT NULL,
			value_num TEXT,
			value_raw TEXT NOT NULL DEFAULT '',
			samples_count INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL DEFAULT '',
			rollup_mark TEXT NOT NULL DEFAULT ''
		);

		-- The composite natural key; upserts conflict on this
		CREATE UNIQUE INDEX IF NOT EXISTS idx_values_identity
		ON metric_values(metric, valid_from, valid_to, service, resource_type, resource_name, event_type, label);

		-- Latest-first reads and retention sweeps
		CREATE INDEX IF NOT EXISTS idx_values_valid_to
		ON metric_values(metric, service, valid_to);

		CREATE INDEX IF NOT EXISTS idx_values_mark
		ON metric_values(rollup_mark);

		-- Monitored services and their collection schedule
		CREATE TABLE IF NOT EXISTS services (
			name TEXT PRIMARY KEY,
			host TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			check_interval_secs INTEGER NOT NULL,
			last_check INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1
		);

		-- Grace-period bookkeeping for notification checks
		CREATE TABLE IF NOT EXISTS notification_state (
			name TEXT PRIMARY KEY,
			last_send INTEGER NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the backing database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Counts returns the number of stored value rows, for diagnostics.
func (s *Store) Counts(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metric_values`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count metric values: %w", err)
	}
	return n, nil
}
