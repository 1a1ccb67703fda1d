package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// scheduleWriteLocked marks the pack dirty and arms the flush timer if idle.
// Caller holds e.mu.
func (e *PromptEngine) scheduleWriteLocked(packID string) {
	e.pending[packID] = struct{}{}
	if e.timer == nil && !e.closed {
		e.armLocked(e.opts.FlushDelay)
	}
}

func (e *PromptEngine) armLocked(delay time.Duration) {
	e.timer = time.AfterFunc(delay, func() {
		if err := e.Flush(context.Background()); err != nil {
			slog.Warn("PromptEngine.flushTimer: flush incomplete", "error", err)
		}
	})
}

// backoff returns delay·2^attempt capped at MaxFlushBackoff.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = DefaultFlushDelay
	}
	d := min(base, MaxFlushBackoff)
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= MaxFlushBackoff {
			return MaxFlushBackoff
		}
	}
	return d
}

// PendingWrites returns the ids of packs with unflushed progress, sorted.
func (e *PromptEngine) PendingWrites() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.pending))
	for id := range e.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Flush writes one snapshot per dirty pack. Failed packs stay dirty and the
// flush timer is re-armed with exponential backoff.
func (e *PromptEngine) Flush(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	batch := make(map[string]models.Progress, len(e.pending))
	for id := range e.pending {
		if ent, ok := e.packs[id]; ok && ent.hydrated {
			batch[id] = ent.pack.Progress.Clone()
		}
	}
	e.pending = make(map[string]struct{})
	e.mu.Unlock()

	if len(batch) == 0 {
		e.mu.Lock()
		e.evictLocked()
		e.mu.Unlock()
		return nil
	}

	var errs []error
	failed := make([]string, 0)
	for id, progress := range batch {
		if err := e.store.UpdateProgress(ctx, id, progress); err != nil {
			errs = append(errs, fmt.Errorf("pack %s: %w", id, err))
			failed = append(failed, id)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(failed) > 0 {
		for _, id := range failed {
			if _, ok := e.packs[id]; ok {
				e.pending[id] = struct{}{}
			}
		}
		delay := backoff(e.opts.FlushDelay, e.retries)
		e.retries++
		if !e.closed && e.timer == nil {
			e.armLocked(delay)
		}
		slog.Error("PromptEngine.Flush: writes failed, retrying", "failed", len(failed), "retryIn", delay)
		return errors.Join(errs...)
	}

	e.retries = 0
	slog.Debug("PromptEngine.Flush: progress written", "packs", len(batch))
	e.evictLocked()
	return nil
}
