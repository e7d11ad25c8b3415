package models

import "time"

// SignalKind is the closed set of signal classifications.
type SignalKind string

const (
	SignalUndervalued SignalKind = "UNDERVALUED"
	SignalWatch       SignalKind = "WATCH"
)

// Signal is an append-only scoring output for one listing.
type Signal struct {
	ID         string     `json:"id"`
	CardID     string     `json:"card_id"`
	ListingID  string     `json:"listing_id"`
	Kind       SignalKind `json:"kind"`
	EdgeBp     int64      `json:"edge_bp"`
	Confidence float64    `json:"confidence"` // 0..1
	Thesis     string     `json:"thesis"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Drop reasons reported by the scorer.
const (
	DropNoSnapshot = "no_snapshot"
	DropGuardrail  = "guardrail"
	DropInvalid    = "invalid"
	DropError      = "error"
)

// ScoreResult reports one scoring pass. Every listing lands in exactly one bucket.
type ScoreResult struct {
	Created           int `json:"created"`
	DroppedNoSnapshot int `json:"dropped_no_snapshot"`
	DroppedGuardrail  int `json:"dropped_guardrail"`
	DroppedInvalid    int `json:"dropped_invalid"`
	DroppedError      int `json:"dropped_error"`
}

// Dropped is the total of all drop buckets.
func (r ScoreResult) Dropped() int {
	return r.DroppedNoSnapshot + r.DroppedGuardrail + r.DroppedInvalid + r.DroppedError
}

// SignalEvent is the alert payload published for each new signal.
type SignalEvent struct {
	Style    string     `json:"style"`
	Signal   Signal     `json:"signal"`
	Card     *Card      `json:"card,omitempty"`
	Listing  *Listing   `json:"listing,omitempty"`
	Headline string     `json:"headline"`
	Bullets  []string   `json:"bullets"`
	Hashtags []string   `json:"hashtags"`
	Links    AlertLinks `json:"links"`
}

type AlertLinks struct {
	Listing string `json:"listing"`
	Proof   string `json:"proof"`
}
