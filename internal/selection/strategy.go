// Package selection implements the three prompt selection strategies of PromptDeck.
//
// Each strategy is gated to one pack type and operates purely on the pack's
// prompt list and progress. Strategies mutate the progress of the pack they
// are handed; callers that share packs must serialise access.
package selection

import (
	"fmt"
	"math/rand/v2"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// Strategy is the contract shared by all selection strategies.
type Strategy interface {
	// Type is the pack type this strategy serves.
	Type() models.PackType
	// SelectNext returns the next prompt to deliver, or nil when none is available.
	SelectNext(pack *models.Pack) (*models.Prompt, error)
	// MarkCompleted records completion of promptID.
	MarkCompleted(pack *models.Pack, promptID string) error
	// IsCompleted reports whether every prompt of the pack has been completed.
	IsCompleted(pack *models.Pack) (bool, error)
	// Reset clears all completion state of the pack.
	Reset(pack *models.Pack) error
}

// RandSource is the random source used by the Random strategy.
// *rand.Rand from math/rand/v2 satisfies it.
type RandSource interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// ForType returns the strategy for a pack type from the given set.
func ForType(packType models.PackType, strategies ...Strategy) (Strategy, error) {
	for _, s := range strategies {
		if s.Type() == packType {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no strategy for pack type %q", models.ErrInvalidPackType, packType)
}

func checkType(op string, want models.PackType, pack *models.Pack) error {
	if pack == nil {
		return fmt.Errorf("%w: %s on nil pack", models.ErrNotFound, op)
	}
	if pack.Type != want {
		return models.NewTypeMismatch(op, want, pack.Type)
	}
	return nil
}

func requirePrompt(pack *models.Pack, promptID string) error {
	if _, ok := pack.PromptByID(promptID); !ok {
		return models.PromptNotFound(pack.ID, promptID)
	}
	return nil
}

func ensureCompletedSet(pack *models.Pack) {
	if pack.Progress.CompletedPrompts == nil {
		pack.Progress.CompletedPrompts = models.IDSet{}
	}
}

func allCompleted(pack *models.Pack) bool {
	if len(pack.Prompts) == 0 {
		return false
	}
	for _, p := range pack.Prompts {
		if !pack.Progress.CompletedPrompts.Has(p.ID) {
			return false
		}
	}
	return true
}

func clonePtr(p models.Prompt) *models.Prompt {
	c := p.Clone()
	return &c
}
