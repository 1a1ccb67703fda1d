package models

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// MaxPromptContentLength defines the maximum allowed length for prompt content.
const MaxPromptContentLength = 4096

// Prompt is one deliverable content unit of a pack.
type Prompt struct {
	ID       string            `json:"id" yaml:"id"`
	Content  string            `json:"content" yaml:"content"`
	Type     PromptType        `json:"type" yaml:"type"`
	Date     *time.Time        `json:"date,omitempty" yaml:"date,omitempty"`
	Order    *int              `json:"order,omitempty" yaml:"order,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewPrompt creates a plain-text prompt with a generated id.
func NewPrompt(content string) Prompt {
	return Prompt{
		ID:      uuid.NewString(),
		Content: content,
		Type:    PromptTypeText,
	}
}

// WithOrder returns a copy of the prompt carrying the given order.
func (p Prompt) WithOrder(order int) Prompt {
	p.Order = &order
	return p
}

// WithDate returns a copy of the prompt carrying the given date.
func (p Prompt) WithDate(date time.Time) Prompt {
	p.Date = &date
	return p
}

// Validate checks the prompt in isolation. Pack-level rules live in Pack.Validate.
func (p *Prompt) Validate() error {
	if p.ID == "" {
		return ErrEmptyPromptID
	}
	if p.Content == "" {
		return ErrEmptyContent
	}
	if len(p.Content) > MaxPromptContentLength {
		return ErrContentTooLong
	}
	if !IsValidPromptType(p.Type) {
		return ErrInvalidPromptType
	}
	if p.Order != nil && *p.Order < 0 {
		return ErrNegativeOrder
	}
	return nil
}

// Clone returns a deep copy of the prompt.
func (p Prompt) Clone() Prompt {
	out := p
	if p.Date != nil {
		d := *p.Date
		out.Date = &d
	}
	if p.Order != nil {
		o := *p.Order
		out.Order = &o
	}
	if p.Metadata != nil {
		out.Metadata = maps.Clone(p.Metadata)
	}
	return out
}
