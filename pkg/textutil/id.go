package textutil

import (
	"time"

	"github.com/google/uuid"
)

// GenerateID returns a time-ordered UUID v7: 48-bit millisecond timestamp
// in the leading bits, version 7, RFC-4122 variant. Successive calls are
// lexicographically non-decreasing.
func GenerateID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Now returns the current instant formatted as ISO-8601 with millisecond
// precision in UTC, e.g. "2026-07-29T12:00:00.000Z".
func Now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// ParseTimestamp parses s as an ISO-8601 date/time with valid calendar
// components, reporting false for out-of-range components like
// "2026-13-45" even when the layout matches syntactically.
func ParseTimestamp(s string) (time.Time, bool) {
	layouts := []string{
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		time.RFC3339,
		time.RFC3339Nano,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsValidTimestamp reports whether s parses as an ISO-8601 date/time with
// valid calendar components.
func IsValidTimestamp(s string) bool {
	_, ok := ParseTimestamp(s)
	return ok
}
