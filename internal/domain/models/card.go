package models

import (
	"errors"
	"time"
)

var (
	ErrMissingCardID   = errors.New("card id is required")
	ErrMissingID       = errors.New("id is required")
	ErrMissingTime     = errors.New("timestamp is required")
	ErrNegativePrice   = errors.New("price must not be negative")
	ErrUnsupportedCode = errors.New("currency code is invalid")
)

// Card identifies one printing of a trading card.
type Card struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SetCode    string `json:"set_code"`
	Number     string `json:"number"`
	VariantKey string `json:"variant_key"`
}

// CompSale is a completed sale used as ground truth for value estimation.
// Prices are integer minor units (cents).
type CompSale struct {
	ID            int64
	CardID        string
	Source        string
	ExternalID    string
	PriceCents    int64
	PriceCentsUSD *int64
	Currency      string
	SoldAt        time.Time
}

// NormalizedCents prefers the USD-normalized price when one was recorded.
func (s CompSale) NormalizedCents() int64 {
	if s.PriceCentsUSD != nil {
		return *s.PriceCentsUSD
	}
	return s.PriceCents
}

// Validate reports whether the row carries every field the aggregator needs.
func (s CompSale) Validate() error {
	if s.CardID == "" {
		return ErrMissingCardID
	}
	if s.SoldAt.IsZero() {
		return ErrMissingTime
	}
	if s.PriceCents < 0 || (s.PriceCentsUSD != nil && *s.PriceCentsUSD < 0) {
		return ErrNegativePrice
	}
	return nil
}

// Listing is a live ask observed on a marketplace.
type Listing struct {
	ID            string    `json:"id"`
	CardID        string    `json:"card_id"`
	Source        string    `json:"source"`
	PriceCents    int64     `json:"price_cents"`
	PriceCentsUSD *int64    `json:"price_cents_usd,omitempty"`
	Currency      string    `json:"currency"`
	Condition     string    `json:"condition,omitempty"`
	Grade         string    `json:"grade,omitempty"`
	URL           string    `json:"url"`
	SeenAt        time.Time `json:"seen_at"`
}

// AskCents is the ask price, currency-normalized when available.
func (l Listing) AskCents() int64 {
	if l.PriceCentsUSD != nil {
		return *l.PriceCentsUSD
	}
	return l.PriceCents
}

func (l Listing) Validate() error {
	if l.ID == "" {
		return ErrMissingID
	}
	if l.CardID == "" {
		return ErrMissingCardID
	}
	if l.SeenAt.IsZero() {
		return ErrMissingTime
	}
	if l.PriceCents < 0 || (l.PriceCentsUSD != nil && *l.PriceCentsUSD < 0) {
		return ErrNegativePrice
	}
	return nil
}
