package notify

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// timerEntry tracks information about a scheduled pack timer
type timerEntry struct {
	timer       *time.Timer
	generation  uint64
	scheduledAt time.Time
	fireAt      time.Time
}

// timerRegistry holds at most one live timer per pack.
type timerRegistry struct {
	mu      sync.RWMutex
	timers  map[string]*timerEntry
	nextGen uint64
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{timers: make(map[string]*timerEntry)}
}

// schedule replaces any live timer of the pack with one firing fn at fireAt.
// fn only runs if the timer is still the pack's live timer when it expires.
func (r *timerRegistry) schedule(packID string, now, fireAt time.Time, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.timers[packID]; ok {
		old.timer.Stop()
		slog.Debug("timerRegistry.schedule: replaced live timer", "packID", packID, "oldFireAt", old.fireAt)
	}
	r.nextGen++
	gen := r.nextGen
	delay := fireAt.Sub(now)
	if delay < 0 {
		delay = 0
	}
	entry := &timerEntry{scheduledAt: now, fireAt: fireAt, generation: gen}
	entry.timer = time.AfterFunc(delay, func() {
		if !r.claim(packID, gen) {
			return
		}
		fn()
	})
	r.timers[packID] = entry
}

// claim removes the pack's timer if it is still generation gen.
func (r *timerRegistry) claim(packID string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.timers[packID]
	if !ok || entry.generation != gen {
		return false
	}
	delete(r.timers, packID)
	return true
}

// cancel stops the pack's live timer. It reports whether one existed.
func (r *timerRegistry) cancel(packID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.timers[packID]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(r.timers, packID)
	return true
}

// takeOverdue removes and returns timers whose fire instant passed more than
// grace before now. Timers inside the grace window are left to fire themselves.
func (r *timerRegistry) takeOverdue(now time.Time, grace time.Duration) map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Time)
	for packID, entry := range r.timers {
		if now.Sub(entry.fireAt) > grace {
			entry.timer.Stop()
			delete(r.timers, packID)
			out[packID] = entry.fireAt
		}
	}
	return out
}

// stop cancels all timers.
func (r *timerRegistry) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.timers {
		entry.timer.Stop()
	}
	slog.Debug("timerRegistry.stop: stopped all timers", "count", len(r.timers))
	r.timers = make(map[string]*timerEntry)
}

func (r *timerRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.timers)
}

// list returns information about all live timers, ordered by fire time.
func (r *timerRegistry) list(now time.Time) []models.TimerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]models.TimerInfo, 0, len(r.timers))
	for packID, entry := range r.timers {
		remaining := entry.fireAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		result = append(result, models.TimerInfo{
			PackID:      packID,
			ScheduledAt: entry.scheduledAt,
			FireAt:      entry.fireAt,
			Remaining:   remaining.String(),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].FireAt.Equal(result[j].FireAt) {
			return result[i].PackID < result[j].PackID
		}
		return result[i].FireAt.Before(result[j].FireAt)
	})
	return result
}
