// Package util provides small helpers shared across PromptDeck packages.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// NoticeIDPrefix marks identifiers of delivered notices.
const NoticeIDPrefix = "n_"

// noticeIDLength is the number of hex digits kept from the random UUID.
const noticeIDLength = 16

// GenerateNoticeID returns a short random notice id such as "n_3f9c0a7d12e4b856".
func GenerateNoticeID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return NoticeIDPrefix + hex[:noticeIDLength]
}
