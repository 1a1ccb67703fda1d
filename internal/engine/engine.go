// Package engine owns the in-memory pack registry of PromptDeck.
//
// The PromptEngine routes selection calls to the strategy matching each pack's
// type and layers result caching, batched progress writes and memory-pressure
// eviction over an injected store.ProgressStore. Callers only ever receive
// copies of packs and prompts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
	"github.com/BTreeMap/PromptDeck/internal/selection"
	"github.com/BTreeMap/PromptDeck/internal/store"
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("prompt engine closed")

type entry struct {
	pack       *models.Pack
	hydrated   bool
	lastAccess time.Time
}

// PromptEngine manages packs and their progress.
type PromptEngine struct {
	store store.ProgressStore
	opts  Opts

	sequential *selection.Sequential
	random     *selection.Random
	date       *selection.DateBased

	mu      sync.Mutex
	packs   map[string]*entry
	pending map[string]struct{}
	cache   *ttlCache
	timer   *time.Timer
	retries int
	closed  bool

	// writeMu orders snapshot-and-write sequences so an older snapshot is
	// never written after a newer one. Lock order: writeMu, then mu.
	writeMu sync.Mutex
}

// NewPromptEngine creates an engine over the given progress store.
func NewPromptEngine(progressStore store.ProgressStore, opts ...Option) *PromptEngine {
	cfg := Opts{
		FlushDelay: DefaultFlushDelay,
		CacheTTL:   DefaultCacheTTL,
		Monitor:    HeapMonitor{Limit: DefaultHeapLimit},
		Now:        time.Now,
		Location:   time.Local,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &PromptEngine{
		store:      progressStore,
		opts:       cfg,
		sequential: selection.NewSequential(),
		random:     selection.NewRandom(cfg.Rand),
		date:       selection.NewDateBased(selection.WithClock(cfg.Now), selection.WithLocation(cfg.Location)),
		packs:      make(map[string]*entry),
		pending:    make(map[string]struct{}),
		cache:      newTTLCache(cfg.CacheTTL),
	}
}

func (e *PromptEngine) strategyFor(pack *models.Pack) (selection.Strategy, error) {
	return selection.ForType(pack.Type, e.sequential, e.random, e.date)
}

// hydrateLocked overlays stored progress onto the pack. The store wins; ids
// that no longer belong to the pack are dropped.
func (e *PromptEngine) hydrateLocked(ent *entry) {
	progress := e.store.GetProgress(ent.pack.ID)
	ids := ent.pack.PromptIDs()
	pruned := 0
	for id := range progress.CompletedPrompts {
		if !ids.Has(id) {
			delete(progress.CompletedPrompts, id)
			pruned++
		}
	}
	for id := range progress.UsedPrompts {
		if !ids.Has(id) {
			delete(progress.UsedPrompts, id)
			pruned++
		}
	}
	if progress.CompletedPrompts == nil {
		progress.CompletedPrompts = models.IDSet{}
	}
	if progress.LastAccessDate.IsZero() {
		progress.LastAccessDate = e.opts.Now()
	}
	if progress.CurrentIndex != nil && (*progress.CurrentIndex < 0 || *progress.CurrentIndex > len(ent.pack.Prompts)) {
		progress.CurrentIndex = nil
		pruned++
	}
	if pruned > 0 {
		slog.Warn("PromptEngine.hydrate: dropped stale progress entries", "packID", ent.pack.ID, "count", pruned)
	}
	ent.pack.Progress = progress
	ent.hydrated = true
}

// lookupLocked returns the hydrated entry for packID. Caller holds e.mu.
func (e *PromptEngine) lookupLocked(packID string) (*entry, error) {
	if e.closed {
		return nil, ErrClosed
	}
	ent, ok := e.packs[packID]
	if !ok {
		return nil, models.PackNotFound(packID)
	}
	if !ent.hydrated {
		e.hydrateLocked(ent)
	}
	ent.lastAccess = e.opts.Now()
	return ent, nil
}

// AddPack registers a new pack and overlays its stored progress.
func (e *PromptEngine) AddPack(pack *models.Pack) error {
	if pack == nil {
		return fmt.Errorf("%w: nil pack", models.ErrValidation)
	}
	if err := pack.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if _, exists := e.packs[pack.ID]; exists {
		return fmt.Errorf("%w: pack %q already loaded", models.ErrValidation, pack.ID)
	}
	ent := &entry{pack: pack.Clone()}
	e.hydrateLocked(ent)
	ent.lastAccess = e.opts.Now()
	e.packs[pack.ID] = ent
	slog.Debug("PromptEngine.AddPack: pack loaded", "packID", pack.ID, "type", pack.Type, "prompts", len(pack.Prompts))
	return nil
}

// UpdatePack replaces a pack's definition and settings. In-memory progress is
// kept, minus ids of prompts the new definition no longer carries.
func (e *PromptEngine) UpdatePack(pack *models.Pack) error {
	if pack == nil {
		return fmt.Errorf("%w: nil pack", models.ErrValidation)
	}
	if err := pack.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(pack.ID)
	if err != nil {
		return err
	}

	next := pack.Clone()
	next.Progress = ent.pack.Progress
	ids := next.PromptIDs()
	changed := false
	for id := range next.Progress.CompletedPrompts {
		if !ids.Has(id) {
			delete(next.Progress.CompletedPrompts, id)
			changed = true
		}
	}
	for id := range next.Progress.UsedPrompts {
		if !ids.Has(id) {
			delete(next.Progress.UsedPrompts, id)
			changed = true
		}
	}
	if next.Type != ent.pack.Type {
		// Strategy-specific state does not carry across pack types.
		next.Progress.CurrentIndex = nil
		next.Progress.UsedPrompts = nil
		changed = true
	}
	ent.pack = next
	e.cache.invalidate(pack.ID)
	if changed {
		e.scheduleWriteLocked(pack.ID)
	}
	return nil
}

// RemovePack writes any pending progress of the pack and drops it from the registry.
// The stored progress is kept, so adding the pack again restores it.
func (e *PromptEngine) RemovePack(ctx context.Context, packID string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	ent, ok := e.packs[packID]
	if !ok {
		e.mu.Unlock()
		return models.PackNotFound(packID)
	}
	_, dirty := e.pending[packID]
	snapshot := ent.pack.Progress.Clone()
	e.mu.Unlock()

	if dirty {
		if err := e.store.UpdateProgress(ctx, packID, snapshot); err != nil {
			return err
		}
	}

	e.mu.Lock()
	delete(e.packs, packID)
	delete(e.pending, packID)
	e.cache.invalidate(packID)
	e.mu.Unlock()
	slog.Debug("PromptEngine.RemovePack: pack removed", "packID", packID)
	return nil
}

// ArchivePack drops the pack and deletes its stored progress.
func (e *PromptEngine) ArchivePack(ctx context.Context, packID string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	if _, ok := e.packs[packID]; !ok {
		e.mu.Unlock()
		return models.PackNotFound(packID)
	}
	delete(e.packs, packID)
	delete(e.pending, packID)
	e.cache.invalidate(packID)
	e.mu.Unlock()

	if err := e.store.ArchiveProgress(ctx, packID); err != nil {
		return err
	}
	slog.Info("PromptEngine.ArchivePack: pack archived", "packID", packID)
	return nil
}

// Sync makes the registry match packs: new packs are added, known packs
// updated and packs missing from the list removed.
func (e *PromptEngine) Sync(ctx context.Context, packs []*models.Pack) error {
	want := make(map[string]struct{}, len(packs))
	var errs []error
	for _, p := range packs {
		want[p.ID] = struct{}{}
		e.mu.Lock()
		_, known := e.packs[p.ID]
		e.mu.Unlock()
		var err error
		if known {
			err = e.UpdatePack(p)
		} else {
			err = e.AddPack(p)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("pack %s: %w", p.ID, err))
		}
	}
	for _, id := range e.packIDs() {
		if _, keep := want[id]; !keep {
			if err := e.RemovePack(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("remove pack %s: %w", id, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (e *PromptEngine) packIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.packs))
	for id := range e.packs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pack returns a copy of the pack with its current progress.
func (e *PromptEngine) Pack(packID string) (*models.Pack, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return nil, err
	}
	return ent.pack.Clone(), nil
}

// GetPromptPack returns a copy of the pack, or false when unknown.
func (e *PromptEngine) GetPromptPack(packID string) (*models.Pack, bool) {
	p, err := e.Pack(packID)
	if err != nil {
		return nil, false
	}
	return p, true
}

// Packs returns copies of every registered pack, ordered by id.
func (e *PromptEngine) Packs() []*models.Pack {
	ids := e.packIDs()
	out := make([]*models.Pack, 0, len(ids))
	for _, id := range ids {
		if p, err := e.Pack(id); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// GetNextPrompt returns the next prompt of the pack, or nil when none is
// available. It touches the pack's last access date.
func (e *PromptEngine) GetNextPrompt(packID string) (*models.Prompt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return nil, err
	}
	now := e.opts.Now()
	ent.pack.Progress.LastAccessDate = now
	// Stats carry the access date; the cached next prompt stays valid.
	e.cache.drop(packID, cacheStats)
	e.scheduleWriteLocked(packID)

	if cached, ok := e.cache.get(packID, cacheNext, now); ok {
		return clonePrompt(cached.(*models.Prompt)), nil
	}
	strategy, err := e.strategyFor(ent.pack)
	if err != nil {
		return nil, err
	}
	prompt, err := strategy.SelectNext(ent.pack)
	if err != nil {
		return nil, err
	}
	e.cache.set(packID, cacheNext, prompt, now)
	return clonePrompt(prompt), nil
}

func clonePrompt(p *models.Prompt) *models.Prompt {
	if p == nil {
		return nil
	}
	c := p.Clone()
	return &c
}

// MarkPromptCompleted records completion of a prompt of the pack.
func (e *PromptEngine) MarkPromptCompleted(packID, promptID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return err
	}
	if _, ok := ent.pack.PromptByID(promptID); !ok {
		return models.PromptNotFound(packID, promptID)
	}
	strategy, err := e.strategyFor(ent.pack)
	if err != nil {
		return err
	}
	if err := strategy.MarkCompleted(ent.pack, promptID); err != nil {
		return err
	}
	ent.pack.Progress.LastAccessDate = e.opts.Now()
	e.cache.invalidate(packID)
	e.scheduleWriteLocked(packID)
	slog.Debug("PromptEngine.MarkPromptCompleted", "packID", packID, "promptID", promptID)
	return nil
}

// TouchPack records an interaction with the pack without completing anything.
func (e *PromptEngine) TouchPack(packID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return err
	}
	ent.pack.Progress.LastAccessDate = e.opts.Now()
	e.cache.drop(packID, cacheStats)
	e.scheduleWriteLocked(packID)
	return nil
}

// IsCompleted reports whether every prompt of the pack is completed.
func (e *PromptEngine) IsCompleted(packID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return false, err
	}
	strategy, err := e.strategyFor(ent.pack)
	if err != nil {
		return false, err
	}
	return strategy.IsCompleted(ent.pack)
}

// ResetProgress zeroes the pack's progress and writes it through immediately.
func (e *PromptEngine) ResetProgress(ctx context.Context, packID string) error {
	return e.writeThrough(ctx, packID, func(pack *models.Pack) error {
		strategy, err := e.strategyFor(pack)
		if err != nil {
			return err
		}
		if err := strategy.Reset(pack); err != nil {
			return err
		}
		pack.ResetProgress(e.opts.Now())
		return nil
	}, true)
}

// ResetCycle starts a new cycle of a random pack, keeping its completion history.
func (e *PromptEngine) ResetCycle(ctx context.Context, packID string) error {
	return e.writeThrough(ctx, packID, e.random.ResetCycle, false)
}

// CycleCompleted reports whether the current cycle of a random pack is exhausted.
func (e *PromptEngine) CycleCompleted(packID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return false, err
	}
	return e.random.CycleCompleted(ent.pack)
}

// CanRestart reports whether a sequential pack is fully completed.
func (e *PromptEngine) CanRestart(packID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return false, err
	}
	return e.sequential.CanRestart(ent.pack)
}

// Restart clears a fully completed sequential pack.
func (e *PromptEngine) Restart(ctx context.Context, packID string) error {
	return e.writeThrough(ctx, packID, e.sequential.Restart, false)
}

// writeThrough applies mutate and persists the result before returning.
// A rejected mutation leaves the pack untouched. A failed write is queued for
// the next flush and reported.
func (e *PromptEngine) writeThrough(ctx context.Context, packID string, mutate func(*models.Pack) error, reset bool) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	work := ent.pack.Clone()
	if err := mutate(work); err != nil {
		e.mu.Unlock()
		return err
	}
	ent.pack.Progress = work.Progress
	delete(e.pending, packID)
	e.cache.invalidate(packID)
	snapshot := work.Progress.Clone()
	e.mu.Unlock()

	if reset {
		err = e.store.ResetProgress(ctx, packID)
	} else {
		err = e.store.UpdateProgress(ctx, packID, snapshot)
	}
	if err != nil {
		slog.Error("PromptEngine.writeThrough: write failed, queued for retry", "packID", packID, "error", err)
		e.mu.Lock()
		e.scheduleWriteLocked(packID)
		e.mu.Unlock()
		return err
	}
	return nil
}

// PromptsForDate returns every prompt of a date-based pack dated on date's day.
func (e *PromptEngine) PromptsForDate(packID string, date time.Time) ([]models.Prompt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return nil, err
	}
	return e.date.PromptsForDate(ent.pack, date)
}

// MissedPrompts returns uncompleted prompts of a date-based pack dated before cutoff's day.
func (e *PromptEngine) MissedPrompts(packID string, cutoff time.Time) ([]models.Prompt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return nil, err
	}
	return e.date.MissedPrompts(ent.pack, cutoff)
}

// UpcomingPrompts returns prompts of a date-based pack dated after start's day.
func (e *PromptEngine) UpcomingPrompts(packID string, start time.Time) ([]models.Prompt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return nil, err
	}
	return e.date.UpcomingPrompts(ent.pack, start)
}

// CatchUpPrompts returns missed prompts at most maxDaysBack days old.
func (e *PromptEngine) CatchUpPrompts(packID string, maxDaysBack int) ([]models.Prompt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return nil, err
	}
	return e.date.CatchUpPrompts(ent.pack, maxDaysBack)
}

// NeedsCatchUp reports whether CatchUpPrompts is non-empty.
func (e *PromptEngine) NeedsCatchUp(packID string, maxDaysBack int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return false, err
	}
	return e.date.NeedsCatchUp(ent.pack, maxDaysBack)
}

// NextAvailableDate returns the next day after from that has a prompt.
func (e *PromptEngine) NextAvailableDate(packID string, from time.Time) (time.Time, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return time.Time{}, false, err
	}
	return e.date.NextAvailableDate(ent.pack, from)
}

// MostRecentDate returns the latest day before from that has a prompt.
func (e *PromptEngine) MostRecentDate(packID string, from time.Time) (time.Time, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return time.Time{}, false, err
	}
	return e.date.MostRecentDate(ent.pack, from)
}

// DateCompletionStatus reports completion of the prompts dated on date's day.
func (e *PromptEngine) DateCompletionStatus(packID string, date time.Time) (selection.DateStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return selection.DateStatus{}, err
	}
	return e.date.DateCompletionStatus(ent.pack, date)
}

// Close flushes pending writes and releases the registry.
func (e *PromptEngine) Close(ctx context.Context) error {
	err := e.Flush(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.closed = true
	if len(e.pending) == 0 {
		e.packs = make(map[string]*entry)
	}
	slog.Info("PromptEngine.Close: engine closed", "unflushed", len(e.pending))
	return err
}
