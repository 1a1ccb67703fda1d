package engine

import (
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
	"github.com/BTreeMap/PromptDeck/internal/selection"
)

// PackStats summarises completion of one pack.
type PackStats struct {
	PackID         string          `json:"pack_id"`
	Name           string          `json:"name"`
	Type           models.PackType `json:"type"`
	Total          int             `json:"total"`
	Completed      int             `json:"completed"`
	Percentage     int             `json:"percentage"`
	IsCompleted    bool            `json:"is_completed"`
	LastAccessDate time.Time       `json:"last_access_date"`
}

// OverallStats aggregates completion across every pack.
type OverallStats struct {
	Packs          int `json:"packs"`
	CompletedPacks int `json:"completed_packs"`
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Percentage     int `json:"percentage"`
}

// GetPackStats returns completion counts for the pack.
func (e *PromptEngine) GetPackStats(packID string) (PackStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(packID)
	if err != nil {
		return PackStats{}, err
	}
	now := e.opts.Now()
	if cached, ok := e.cache.get(packID, cacheStats, now); ok {
		return cached.(PackStats), nil
	}
	stats := packStats(ent.pack)
	e.cache.set(packID, cacheStats, stats, now)
	return stats, nil
}

func packStats(pack *models.Pack) PackStats {
	s := PackStats{
		PackID:         pack.ID,
		Name:           pack.Name,
		Type:           pack.Type,
		Total:          len(pack.Prompts),
		LastAccessDate: pack.Progress.LastAccessDate,
	}
	for _, p := range pack.Prompts {
		if pack.Progress.CompletedPrompts.Has(p.ID) {
			s.Completed++
		}
	}
	s.Percentage = selection.Percentage(s.Completed, s.Total)
	s.IsCompleted = s.Total > 0 && s.Completed == s.Total
	return s
}

// GetOverallStats aggregates completion across all packs.
func (e *PromptEngine) GetOverallStats() OverallStats {
	var out OverallStats
	for _, id := range e.packIDs() {
		s, err := e.GetPackStats(id)
		if err != nil {
			continue
		}
		out.Packs++
		out.Total += s.Total
		out.Completed += s.Completed
		if s.IsCompleted {
			out.CompletedPacks++
		}
	}
	out.Percentage = selection.Percentage(out.Completed, out.Total)
	return out
}
