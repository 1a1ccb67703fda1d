package notify

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// notificationTimeRegex accepts strict 24-hour HH:MM.
var notificationTimeRegex = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ParseNotificationTime parses a strict "HH:MM" string into hour and minute.
func ParseNotificationTime(s string) (hour, minute int, err error) {
	m := notificationTimeRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: notification time %q is not HH:MM", models.ErrFormat, s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// NextFireTime returns the next instant strictly after now at which the daily
// time falls, in now's location. A target equal to now rolls to the next day.
func NextFireTime(timeStr string, now time.Time) (time.Time, error) {
	hour, minute, err := ParseNotificationTime(timeStr)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := now.Date()
	target := time.Date(y, mo, d, hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = time.Date(y, mo, d+1, hour, minute, 0, 0, now.Location())
	}
	return target, nil
}
