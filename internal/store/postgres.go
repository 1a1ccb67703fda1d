// This file implements a PostgreSQL-backed store for progress snapshots.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/PromptDeck/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists progress and ledger entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("%w: database DSN not set", models.ErrValidation)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// GetProgress implements ProgressStore.
func (s *PostgresStore) GetProgress(packID string) models.Progress {
	var raw []byte
	err := s.db.QueryRow(`SELECT progress_json FROM pack_progress WHERE pack_id = $1`, packID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EmptyProgress()
	}
	if err != nil {
		slog.Error("PostgresStore GetProgress query failed", "error", err, "packID", packID)
		return models.EmptyProgress()
	}
	var p models.Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.Warn("PostgresStore GetProgress: corrupt record, treating as absent", "error", err, "packID", packID)
		return models.EmptyProgress()
	}
	return p
}

// UpdateProgress implements ProgressStore.
func (s *PostgresStore) UpdateProgress(ctx context.Context, packID string, progress models.Progress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress for %s: %w", packID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO pack_progress (pack_id, progress_json, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (pack_id) DO UPDATE SET progress_json = EXCLUDED.progress_json, updated_at = EXCLUDED.updated_at`,
		packID, data, time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore UpdateProgress failed", "error", err, "packID", packID)
		return fmt.Errorf("%w: update progress %s: %w", models.ErrTransientIO, packID, err)
	}
	slog.Debug("PostgresStore UpdateProgress succeeded", "packID", packID, "completed", len(progress.CompletedPrompts))
	return nil
}

// ResetProgress implements ProgressStore.
func (s *PostgresStore) ResetProgress(ctx context.Context, packID string) error {
	return s.UpdateProgress(ctx, packID, models.NewProgress(time.Now()))
}

// ArchiveProgress implements ProgressStore.
func (s *PostgresStore) ArchiveProgress(ctx context.Context, packID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pack_progress WHERE pack_id = $1`, packID); err != nil {
		slog.Error("PostgresStore ArchiveProgress failed", "error", err, "packID", packID)
		return fmt.Errorf("%w: archive progress %s: %w", models.ErrTransientIO, packID, err)
	}
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
