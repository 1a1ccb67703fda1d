package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultNotificationTime is the daily delivery time given to new packs.
const DefaultNotificationTime = "09:00"

// PackSettings holds per-pack delivery preferences.
type PackSettings struct {
	NotificationsEnabled bool            `json:"notifications_enabled" yaml:"notifications"`
	NotificationTime     string          `json:"notification_time" yaml:"time"` // HH:MM, 24-hour, local time
	Channel              DeliveryChannel `json:"channel" yaml:"channel"`
	ZenMode              bool            `json:"zen_mode" yaml:"zen_mode"`
	DailyNoteIntegration bool            `json:"daily_note_integration" yaml:"daily_note"`
}

// DefaultPackSettings returns the settings a freshly created pack starts with.
func DefaultPackSettings() PackSettings {
	return PackSettings{
		NotificationsEnabled: true,
		NotificationTime:     DefaultNotificationTime,
		Channel:              ChannelInApp,
		ZenMode:              false,
		DailyNoteIntegration: true,
	}
}

// Pack is a named prompt collection plus its delivery settings and progress.
type Pack struct {
	ID        string       `json:"id" yaml:"id"`
	Name      string       `json:"name" yaml:"name"`
	Type      PackType     `json:"type" yaml:"type"`
	Prompts   []Prompt     `json:"prompts" yaml:"prompts"`
	Settings  PackSettings `json:"settings" yaml:"settings"`
	Progress  Progress     `json:"progress" yaml:"-"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt time.Time    `json:"updated_at" yaml:"updated_at,omitempty"`
}

// NewPack creates a validated pack with default settings and empty progress.
func NewPack(name string, packType PackType, prompts []Prompt, now time.Time) (*Pack, error) {
	p := &Pack{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      packType,
		Prompts:   make([]Prompt, 0, len(prompts)),
		Settings:  DefaultPackSettings(),
		Progress:  NewProgress(now),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, prompt := range prompts {
		p.Prompts = append(p.Prompts, prompt.Clone())
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks every pack invariant.
func (p *Pack) Validate() error {
	if p.ID == "" {
		return ErrEmptyPackID
	}
	if p.Name == "" {
		return ErrEmptyPackName
	}
	if !IsValidPackType(p.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidPackType, p.Type)
	}
	if !IsValidChannel(p.Settings.Channel) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, p.Settings.Channel)
	}
	if err := validatePromptList(p.Type, p.Prompts); err != nil {
		return err
	}
	return p.Progress.ValidateAgainst(p.PromptIDs())
}

func validatePromptList(packType PackType, prompts []Prompt) error {
	seen := make(IDSet, len(prompts))
	ordered := 0
	for i := range prompts {
		prompt := &prompts[i]
		if err := prompt.Validate(); err != nil {
			return fmt.Errorf("prompt %d: %w", i, err)
		}
		if seen.Has(prompt.ID) {
			return fmt.Errorf("%w: %q", ErrDuplicatePromptID, prompt.ID)
		}
		seen.Add(prompt.ID)
		if prompt.Order != nil {
			ordered++
		}
		if packType == PackTypeDateBased && prompt.Date == nil {
			return fmt.Errorf("%w: %q", ErrMissingDate, prompt.ID)
		}
	}
	if packType == PackTypeSequential && ordered != 0 && ordered != len(prompts) {
		return ErrMixedOrder
	}
	return nil
}

// PromptIDs returns the ids of the prompts currently in the pack.
func (p *Pack) PromptIDs() IDSet {
	ids := make(IDSet, len(p.Prompts))
	for _, prompt := range p.Prompts {
		ids.Add(prompt.ID)
	}
	return ids
}

// PromptByID looks up a prompt by id.
func (p *Pack) PromptByID(id string) (Prompt, bool) {
	if i := p.indexOf(id); i >= 0 {
		return p.Prompts[i], true
	}
	return Prompt{}, false
}

func (p *Pack) indexOf(id string) int {
	for i := range p.Prompts {
		if p.Prompts[i].ID == id {
			return i
		}
	}
	return -1
}

// AddPrompt appends a prompt. The pack is left untouched if the result would be invalid.
func (p *Pack) AddPrompt(prompt Prompt, now time.Time) error {
	next := append(clonePrompts(p.Prompts), prompt.Clone())
	if err := validatePromptList(p.Type, next); err != nil {
		return err
	}
	p.Prompts = next
	p.UpdatedAt = now
	return nil
}

// UpdatePrompt replaces the prompt with the same id.
func (p *Pack) UpdatePrompt(prompt Prompt, now time.Time) error {
	i := p.indexOf(prompt.ID)
	if i < 0 {
		return PromptNotFound(p.ID, prompt.ID)
	}
	next := clonePrompts(p.Prompts)
	next[i] = prompt.Clone()
	if err := validatePromptList(p.Type, next); err != nil {
		return err
	}
	p.Prompts = next
	p.UpdatedAt = now
	return nil
}

// RemovePrompt deletes a prompt and prunes it from progress.
func (p *Pack) RemovePrompt(id string, now time.Time) error {
	i := p.indexOf(id)
	if i < 0 {
		return PromptNotFound(p.ID, id)
	}
	next := clonePrompts(p.Prompts)
	next = append(next[:i], next[i+1:]...)
	if err := validatePromptList(p.Type, next); err != nil {
		return err
	}
	p.Prompts = next
	delete(p.Progress.CompletedPrompts, id)
	if p.Progress.UsedPrompts != nil {
		delete(p.Progress.UsedPrompts, id)
	}
	if p.Progress.CurrentIndex != nil && *p.Progress.CurrentIndex >= len(next) {
		p.Progress.CurrentIndex = nil
	}
	p.UpdatedAt = now
	return nil
}

// ResetProgress zeroes completion state without touching the prompt list.
func (p *Pack) ResetProgress(now time.Time) {
	p.Progress = NewProgress(now)
}

// Clone returns a deep copy of the pack.
func (p *Pack) Clone() *Pack {
	if p == nil {
		return nil
	}
	out := *p
	out.Prompts = clonePrompts(p.Prompts)
	out.Progress = p.Progress.Clone()
	return &out
}

func clonePrompts(prompts []Prompt) []Prompt {
	out := make([]Prompt, len(prompts))
	for i := range prompts {
		out[i] = prompts[i].Clone()
	}
	return out
}
