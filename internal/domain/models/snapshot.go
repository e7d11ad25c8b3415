package models

import "time"

// Canonical lookback windows, in days.
const (
	Window7  = 7
	Window30 = 30
	Window90 = 90
)

// CanonicalWindows are recomputed on every refresh.
var CanonicalWindows = []int{Window7, Window30, Window90}

// FeatureSnapshot summarises one card's sales over a trailing window.
// A snapshot only exists when Volume >= 3.
type FeatureSnapshot struct {
	CardID       string    `json:"card_id"`
	WindowDays   int       `json:"window_days"`
	MedianCents  int64     `json:"median_cents"`
	P05Cents     int64     `json:"p05_cents"`
	P95Cents     int64     `json:"p95_cents"`
	Volume       int       `json:"volume"`
	VolatilityBp int64     `json:"volatility_bp"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SnapshotKey is the upsert key of a snapshot.
type SnapshotKey struct {
	CardID     string
	WindowDays int
}

func (s FeatureSnapshot) Key() SnapshotKey {
	return SnapshotKey{CardID: s.CardID, WindowDays: s.WindowDays}
}

// RefreshResult reports one RefreshTouched pass.
type RefreshResult struct {
	Skipped          bool `json:"skipped,omitempty"`
	CardsTouched     int  `json:"cards_touched"`
	SnapshotsWritten int  `json:"snapshots_written"`
	Insufficient     int  `json:"insufficient"`
	Failed           int  `json:"failed"`
}
