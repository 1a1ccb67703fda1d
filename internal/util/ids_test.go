package util

import (
	"regexp"
	"testing"
)

var noticeIDPattern = regexp.MustCompile(`^n_[0-9a-f]{16}$`)

func TestGenerateNoticeID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := GenerateNoticeID()
		if !noticeIDPattern.MatchString(id) {
			t.Fatalf("GenerateNoticeID() = %q, want n_ followed by 16 hex digits", id)
		}
		if seen[id] {
			t.Fatalf("duplicate notice id %q after %d ids", id, i)
		}
		seen[id] = true
	}
}
