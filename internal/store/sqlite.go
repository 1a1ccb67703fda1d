// This file implements an SQLite-backed store for progress snapshots.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/PromptDeck/internal/models"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists progress and ledger entries in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "", "driver", cfg.SQLiteDriver)

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("%w: database DSN not set", models.ErrValidation)
	}
	driver := cfg.SQLiteDriver
	if driver == "" {
		driver = DriverSQLiteCGO
	}
	if driver != DriverSQLiteCGO && driver != DriverSQLitePure {
		return nil, fmt.Errorf("%w: unknown sqlite driver %q", models.ErrValidation, driver)
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY between the flush loop and resets.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "driver", driver)

	return &SQLiteStore{db: db}, nil
}

// GetProgress implements ProgressStore.
func (s *SQLiteStore) GetProgress(packID string) models.Progress {
	var raw string
	err := s.db.QueryRow(`SELECT progress_json FROM pack_progress WHERE pack_id = ?`, packID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EmptyProgress()
	}
	if err != nil {
		slog.Error("SQLiteStore GetProgress query failed", "error", err, "packID", packID)
		return models.EmptyProgress()
	}
	var p models.Progress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		slog.Warn("SQLiteStore GetProgress: corrupt record, treating as absent", "error", err, "packID", packID)
		return models.EmptyProgress()
	}
	return p
}

// UpdateProgress implements ProgressStore.
func (s *SQLiteStore) UpdateProgress(ctx context.Context, packID string, progress models.Progress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress for %s: %w", packID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO pack_progress (pack_id, progress_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(pack_id) DO UPDATE SET progress_json = excluded.progress_json, updated_at = excluded.updated_at`,
		packID, string(data), time.Now().UTC().Format(models.ISOMillis))
	if err != nil {
		slog.Error("SQLiteStore UpdateProgress failed", "error", err, "packID", packID)
		return fmt.Errorf("%w: update progress %s: %w", models.ErrTransientIO, packID, err)
	}
	slog.Debug("SQLiteStore UpdateProgress succeeded", "packID", packID, "completed", len(progress.CompletedPrompts))
	return nil
}

// ResetProgress implements ProgressStore.
func (s *SQLiteStore) ResetProgress(ctx context.Context, packID string) error {
	return s.UpdateProgress(ctx, packID, models.NewProgress(time.Now()))
}

// ArchiveProgress implements ProgressStore.
func (s *SQLiteStore) ArchiveProgress(ctx context.Context, packID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pack_progress WHERE pack_id = ?`, packID); err != nil {
		slog.Error("SQLiteStore ArchiveProgress failed", "error", err, "packID", packID)
		return fmt.Errorf("%w: archive progress %s: %w", models.ErrTransientIO, packID, err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
