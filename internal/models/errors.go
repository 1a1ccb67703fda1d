package models

import (
	"errors"
	"fmt"
)

// Error kinds. Concrete errors wrap one of these so callers can branch with errors.Is.
var (
	// ErrValidation marks malformed pack, prompt or progress data.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an unknown pack or prompt id.
	ErrNotFound = errors.New("not found")
	// ErrTypeMismatch marks a type-gated operation invoked on the wrong pack type.
	ErrTypeMismatch = errors.New("pack type mismatch")
	// ErrFormat marks a malformed notification time string.
	ErrFormat = errors.New("format error")
	// ErrTransientIO marks a store or note sink failure that may succeed on retry.
	ErrTransientIO = errors.New("transient i/o error")
)

// Validation errors for prompts and packs.
var (
	ErrEmptyPromptID       = fmt.Errorf("%w: prompt id cannot be empty", ErrValidation)
	ErrEmptyContent        = fmt.Errorf("%w: prompt content cannot be empty", ErrValidation)
	ErrContentTooLong      = fmt.Errorf("%w: prompt content exceeds maximum length", ErrValidation)
	ErrInvalidPromptType   = fmt.Errorf("%w: invalid prompt type", ErrValidation)
	ErrNegativeOrder       = fmt.Errorf("%w: prompt order must be >= 0", ErrValidation)
	ErrEmptyPackID         = fmt.Errorf("%w: pack id cannot be empty", ErrValidation)
	ErrEmptyPackName       = fmt.Errorf("%w: pack name cannot be empty", ErrValidation)
	ErrInvalidPackType     = fmt.Errorf("%w: invalid pack type", ErrValidation)
	ErrDuplicatePromptID   = fmt.Errorf("%w: duplicate prompt id", ErrValidation)
	ErrMixedOrder          = fmt.Errorf("%w: sequential pack mixes ordered and unordered prompts", ErrValidation)
	ErrMissingDate         = fmt.Errorf("%w: date-based pack prompt has no date", ErrValidation)
	ErrInvalidChannel      = fmt.Errorf("%w: invalid delivery channel", ErrValidation)
	ErrUnknownProgressItem = fmt.Errorf("%w: progress references a prompt outside the pack", ErrValidation)
)

// TypeMismatchError reports that an operation expected a different pack type.
type TypeMismatchError struct {
	Operation string
	Expected  PackType
	Actual    PackType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s requires a %s pack, got %s", e.Operation, e.Expected, e.Actual)
}

// Is reports ErrTypeMismatch so errors.Is(err, ErrTypeMismatch) matches.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// NewTypeMismatch builds a TypeMismatchError.
func NewTypeMismatch(operation string, expected, actual PackType) error {
	return &TypeMismatchError{Operation: operation, Expected: expected, Actual: actual}
}

// PackNotFound returns an ErrNotFound for an unknown pack.
func PackNotFound(packID string) error {
	return fmt.Errorf("%w: pack %q", ErrNotFound, packID)
}

// PromptNotFound returns an ErrNotFound for a prompt missing from a pack.
func PromptNotFound(packID, promptID string) error {
	return fmt.Errorf("%w: prompt %q in pack %q", ErrNotFound, promptID, packID)
}
