package engine

import (
	"log/slog"
	"runtime"
	"sort"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// MemoryMonitor reports whether the process is under memory pressure.
type MemoryMonitor interface {
	UnderPressure() bool
}

// HeapMonitor signals pressure when the live heap exceeds Limit bytes.
type HeapMonitor struct {
	Limit uint64
}

// UnderPressure implements MemoryMonitor.
func (m HeapMonitor) UnderPressure() bool {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc > m.Limit
}

// Evict sheds the progress of clean packs when the engine holds more than
// MaxHydrated packs or the monitor reports pressure. It returns how many packs
// were evicted. Flush also evicts; Evict lets a quiet engine shed memory.
func (e *PromptEngine) Evict() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0
	}
	return e.evictLocked()
}

// evictLocked drops the progress of the least recently accessed clean packs.
// Packs with unflushed writes are never evicted. Caller holds e.mu.
func (e *PromptEngine) evictLocked() int {
	candidates := make([]*entry, 0, len(e.packs))
	hydrated := 0
	for id, ent := range e.packs {
		if !ent.hydrated {
			continue
		}
		hydrated++
		if _, dirty := e.pending[id]; !dirty {
			candidates = append(candidates, ent)
		}
	}
	if len(candidates) == 0 {
		return 0
	}

	target := 0
	if e.opts.MaxHydrated > 0 && hydrated > e.opts.MaxHydrated {
		target = hydrated - e.opts.MaxHydrated
	}
	if e.opts.Monitor != nil && e.opts.Monitor.UnderPressure() {
		// Shed a quarter of the hydrated packs, at least one.
		if q := max(1, hydrated/4); q > target {
			target = q
		}
	}
	if target == 0 {
		return 0
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccess.Before(candidates[j].lastAccess)
	})
	if target > len(candidates) {
		target = len(candidates)
	}
	for _, ent := range candidates[:target] {
		ent.pack.Progress = models.EmptyProgress()
		ent.hydrated = false
		e.cache.invalidate(ent.pack.ID)
	}
	slog.Debug("PromptEngine.evict: evicted hydrated packs", "count", target, "hydrated", hydrated)
	return target
}
