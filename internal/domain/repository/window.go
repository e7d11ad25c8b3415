package repository

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidWindow is returned for a non-positive lookback window.
	ErrInvalidWindow = errors.New("window days must be positive")
	// ErrNotConfigured is returned when a store was built without a backing client.
	ErrNotConfigured = errors.New("store not configured")
	// ErrStoreUnavailable means the store should be considered down for the rest of the batch.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned by single-row lookups.
	ErrNotFound = errors.New("not found")
)

// ValidateWindow checks a single lookback window.
func ValidateWindow(days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWindow, days)
	}
	return nil
}

// NormalizeWindows drops duplicates and returns the windows in descending
// order, so that the first match is the largest window.
func NormalizeWindows(windows []int) ([]int, error) {
	seen := make(map[int]struct{}, len(windows))
	out := make([]int, 0, len(windows))
	for _, w := range windows {
		if err := ValidateWindow(w); err != nil {
			return nil, err
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out, nil
}
