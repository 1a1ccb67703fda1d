// Package store provides storage backends for PromptDeck.
//
// It includes an in-memory store and SQLite/PostgreSQL stores for per-pack
// progress snapshots and the missed-notice ledger.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// ProgressStore persists per-pack progress as full snapshots.
//
// Writes overwrite the whole snapshot, so repeating or reordering a write for
// the same state is harmless.
type ProgressStore interface {
	// GetProgress returns the stored progress, or models.EmptyProgress when
	// absent. The caller stamps the access date of absent progress. It never
	// fails; backend errors are logged and treated as absent.
	GetProgress(packID string) models.Progress
	// UpdateProgress overwrites the stored snapshot.
	UpdateProgress(ctx context.Context, packID string, progress models.Progress) error
	// ResetProgress stores empty progress for the pack.
	ResetProgress(ctx context.Context, packID string) error
	// ArchiveProgress removes the stored record.
	ArchiveProgress(ctx context.Context, packID string) error
}

// NoticeLedger remembers which missed fires have already been announced.
type NoticeLedger interface {
	// RecordNotice stores key and reports whether it was new.
	RecordNotice(ctx context.Context, key, packID string) (bool, error)
	// PruneNotices drops keys recorded before the given instant.
	PruneNotices(ctx context.Context, before time.Time) (int, error)
}

// Store is a complete storage backend.
type Store interface {
	ProgressStore
	NoticeLedger
	Close() error
}

// Compile-time checks that all backends implement Store.
var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// New builds the backend selected by the options: Postgres for a postgres DSN,
// SQLite for any other DSN, memory when no DSN is set.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("store.New: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}

// InMemoryStore keeps progress and ledger entries in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	progress map[string]models.Progress
	notices  map[string]time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		progress: make(map[string]models.Progress),
		notices:  make(map[string]time.Time),
	}
}

// GetProgress implements ProgressStore.
func (s *InMemoryStore) GetProgress(packID string) models.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.progress[packID]; ok {
		return p.Clone()
	}
	return models.EmptyProgress()
}

// UpdateProgress implements ProgressStore.
func (s *InMemoryStore) UpdateProgress(ctx context.Context, packID string, progress models.Progress) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: update progress %s: %w", models.ErrTransientIO, packID, err)
	}
	s.mu.Lock()
	s.progress[packID] = progress.Clone()
	s.mu.Unlock()
	return nil
}

// ResetProgress implements ProgressStore.
func (s *InMemoryStore) ResetProgress(ctx context.Context, packID string) error {
	return s.UpdateProgress(ctx, packID, models.NewProgress(time.Now()))
}

// ArchiveProgress implements ProgressStore.
func (s *InMemoryStore) ArchiveProgress(ctx context.Context, packID string) error {
	s.mu.Lock()
	delete(s.progress, packID)
	s.mu.Unlock()
	return nil
}

// RecordNotice implements NoticeLedger.
func (s *InMemoryStore) RecordNotice(ctx context.Context, key, packID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.notices[key]; seen {
		return false, nil
	}
	s.notices[key] = time.Now()
	return true, nil
}

// PruneNotices implements NoticeLedger.
func (s *InMemoryStore) PruneNotices(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, at := range s.notices {
		if at.Before(before) {
			delete(s.notices, key)
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
