package selection

import (
	"github.com/BTreeMap/PromptDeck/internal/models"
)

// Random picks uniformly among prompts not yet used in the current cycle.
// UsedPrompts is the cycle membership; CompletedPrompts is the lifetime history.
type Random struct {
	src RandSource
}

// NewRandom creates the random strategy. A nil source uses the math/rand/v2 global generator.
func NewRandom(src RandSource) *Random {
	if src == nil {
		src = globalSource{}
	}
	return &Random{src: src}
}

// Type implements Strategy.
func (r *Random) Type() models.PackType { return models.PackTypeRandom }

// SelectNext picks a prompt outside the current cycle, starting a new cycle when exhausted.
func (r *Random) SelectNext(pack *models.Pack) (*models.Prompt, error) {
	if err := checkType("selectNext", models.PackTypeRandom, pack); err != nil {
		return nil, err
	}
	if len(pack.Prompts) == 0 {
		return nil, nil
	}
	if pack.Progress.UsedPrompts == nil {
		pack.Progress.UsedPrompts = models.IDSet{}
	}

	pool := r.pool(pack)
	if len(pool) == 0 {
		pack.Progress.UsedPrompts = models.IDSet{}
		pool = pack.Prompts
	}
	picked := pool[r.src.IntN(len(pool))]
	return clonePtr(picked), nil
}

func (r *Random) pool(pack *models.Pack) []models.Prompt {
	pool := make([]models.Prompt, 0, len(pack.Prompts))
	for _, p := range pack.Prompts {
		if !pack.Progress.UsedPrompts.Has(p.ID) {
			pool = append(pool, p)
		}
	}
	return pool
}

// MarkCompleted adds the prompt to both the history and the current cycle.
func (r *Random) MarkCompleted(pack *models.Pack, promptID string) error {
	if err := checkType("markCompleted", models.PackTypeRandom, pack); err != nil {
		return err
	}
	if err := requirePrompt(pack, promptID); err != nil {
		return err
	}
	ensureCompletedSet(pack)
	pack.Progress.CompletedPrompts.Add(promptID)
	if pack.Progress.UsedPrompts == nil {
		pack.Progress.UsedPrompts = models.IDSet{}
	}
	pack.Progress.UsedPrompts.Add(promptID)
	return nil
}

// IsCompleted reports whether every prompt appears in the lifetime history.
func (r *Random) IsCompleted(pack *models.Pack) (bool, error) {
	if err := checkType("isCompleted", models.PackTypeRandom, pack); err != nil {
		return false, err
	}
	return allCompleted(pack), nil
}

// CycleCompleted reports whether every prompt has been used in the current cycle.
func (r *Random) CycleCompleted(pack *models.Pack) (bool, error) {
	if err := checkType("cycleCompleted", models.PackTypeRandom, pack); err != nil {
		return false, err
	}
	if len(pack.Prompts) == 0 || pack.Progress.UsedPrompts == nil {
		return false, nil
	}
	return len(r.pool(pack)) == 0, nil
}

// ResetCycle clears the cycle membership and keeps the completion history.
func (r *Random) ResetCycle(pack *models.Pack) error {
	if err := checkType("resetCycle", models.PackTypeRandom, pack); err != nil {
		return err
	}
	pack.Progress.UsedPrompts = models.IDSet{}
	return nil
}

// Reset implements Strategy.
func (r *Random) Reset(pack *models.Pack) error {
	if err := checkType("reset", models.PackTypeRandom, pack); err != nil {
		return err
	}
	pack.Progress.CompletedPrompts = models.IDSet{}
	pack.Progress.UsedPrompts = nil
	return nil
}
