package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// RecordNotice inserts the key if not already present.
// Returns true if the key was new (not a duplicate).
func (s *SQLiteStore) RecordNotice(ctx context.Context, key, packID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notice_ledger (notice_key, pack_id, recorded_at) VALUES (?, ?, ?)`,
		key, packID, time.Now().UTC().Format(models.ISOMillis),
	)
	if err != nil {
		return false, fmt.Errorf("%w: record notice %s: %w", models.ErrTransientIO, key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: record notice rows affected: %w", models.ErrTransientIO, err)
	}
	isNew := n > 0
	slog.Debug("SQLiteStore.RecordNotice", "key", key, "packID", packID, "isNew", isNew)
	return isNew, nil
}

// PruneNotices deletes ledger keys recorded before the given time.
func (s *SQLiteStore) PruneNotices(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM notice_ledger WHERE recorded_at < ?`,
		before.UTC().Format(models.ISOMillis),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: prune notices: %w", models.ErrTransientIO, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: prune notices rows affected: %w", models.ErrTransientIO, err)
	}
	if n > 0 {
		slog.Info("SQLiteStore.PruneNotices: removed old ledger keys", "count", n)
	}
	return int(n), nil
}
