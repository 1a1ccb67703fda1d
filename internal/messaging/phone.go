package messaging

import (
	"fmt"
	"log/slog"
	"regexp"
)

// phoneNumberRegex matches every non-digit character.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// CanonicalizeRecipient validates a phone number and strips it to digits.
// It requires at least 6 digits.
func CanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("%w: recipient cannot be empty", ErrInvalidRecipient)
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("%w: no digits found in recipient %q", ErrInvalidRecipient, recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("%w: %q is too short (minimum 6 digits required)", ErrInvalidRecipient, canonical)
	}

	if recipient != canonical {
		slog.Debug("CanonicalizeRecipient: canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
