package util

import (
	"math"
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

const maxWholeDays = math.MaxInt64 / int64(24*time.Hour)

// DaysAgo is the start of a trailing window of n days ending at now. Windows
// longer than a time.Duration can hold have no lower bound: the zero time.
func DaysAgo(now time.Time, n int) time.Time {
	if int64(n) > maxWholeDays {
		return time.Time{}
	}
	return now.Add(-time.Duration(n) * 24 * time.Hour)
}

// WholeDaysBetween floors the elapsed time to whole days, never negative.
func WholeDaysBetween(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
