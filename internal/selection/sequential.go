package selection

import (
	"fmt"
	"sort"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// ErrNotRestartable is returned by Restart while prompts remain uncompleted.
var ErrNotRestartable = fmt.Errorf("%w: sequential pack is not fully completed", models.ErrValidation)

// Sequential delivers prompts in order, falling back to list position when
// prompts carry no order. The completed set is authoritative; CurrentIndex is
// only a hint kept for display.
type Sequential struct{}

// NewSequential creates the sequential strategy.
func NewSequential() *Sequential {
	return &Sequential{}
}

// Type implements Strategy.
func (s *Sequential) Type() models.PackType { return models.PackTypeSequential }

// Ordered returns the pack's prompts in delivery order. Ties keep insertion order.
func (s *Sequential) Ordered(pack *models.Pack) ([]models.Prompt, error) {
	if err := checkType("ordered", models.PackTypeSequential, pack); err != nil {
		return nil, err
	}
	return ordered(pack), nil
}

func ordered(pack *models.Pack) []models.Prompt {
	out := make([]models.Prompt, len(pack.Prompts))
	copy(out, pack.Prompts)
	if len(out) == 0 || out[0].Order == nil {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Order < *out[j].Order
	})
	return out
}

// SelectNext returns the first prompt in order that is not completed.
func (s *Sequential) SelectNext(pack *models.Pack) (*models.Prompt, error) {
	if err := checkType("selectNext", models.PackTypeSequential, pack); err != nil {
		return nil, err
	}
	for _, p := range ordered(pack) {
		if !pack.Progress.CompletedPrompts.Has(p.ID) {
			return clonePtr(p), nil
		}
	}
	return nil, nil
}

// MarkCompleted records completion and advances the cursor only when the
// completed prompt sits exactly at it.
func (s *Sequential) MarkCompleted(pack *models.Pack, promptID string) error {
	if err := checkType("markCompleted", models.PackTypeSequential, pack); err != nil {
		return err
	}
	if err := requirePrompt(pack, promptID); err != nil {
		return err
	}
	ensureCompletedSet(pack)
	pack.Progress.CompletedPrompts.Add(promptID)

	cursor := 0
	if pack.Progress.CurrentIndex != nil {
		cursor = *pack.Progress.CurrentIndex
	}
	list := ordered(pack)
	if cursor < len(list) && list[cursor].ID == promptID {
		next := cursor + 1
		pack.Progress.CurrentIndex = &next
	}
	return nil
}

// IsCompleted implements Strategy.
func (s *Sequential) IsCompleted(pack *models.Pack) (bool, error) {
	if err := checkType("isCompleted", models.PackTypeSequential, pack); err != nil {
		return false, err
	}
	return allCompleted(pack), nil
}

// CanRestart is true only when every prompt has been completed.
func (s *Sequential) CanRestart(pack *models.Pack) (bool, error) {
	return s.IsCompleted(pack)
}

// Restart clears completion and the cursor of a fully completed pack.
func (s *Sequential) Restart(pack *models.Pack) error {
	ok, err := s.CanRestart(pack)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRestartable
	}
	return s.Reset(pack)
}

// Reset implements Strategy.
func (s *Sequential) Reset(pack *models.Pack) error {
	if err := checkType("reset", models.PackTypeSequential, pack); err != nil {
		return err
	}
	pack.Progress.CompletedPrompts = models.IDSet{}
	pack.Progress.CurrentIndex = nil
	return nil
}
