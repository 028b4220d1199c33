package utils

import "time"

// ISO8601Millis is the timestamp layout stored in every record.
// Fixed width keeps lexicographic and chronological order identical.
const ISO8601Millis = "2006-01-02T15:04:05.000Z"

// Clock returns the current time. Tests replace it to get stable stamps.
type Clock func() time.Time

// SystemClock is the default Clock.
func SystemClock() time.Time {
	return time.Now()
}

// FormatISO formats t in UTC with millisecond precision
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISO8601Millis)
}

// NowISO returns the current time in the stored timestamp format
func NowISO() string {
	return FormatISO(time.Now())
}

// ParseISO parses a stored timestamp, accepting plain RFC3339 as well
func ParseISO(s string) (time.Time, error) {
	if t, err := time.Parse(ISO8601Millis, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
