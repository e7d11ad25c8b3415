package models

import "time"

// SignalRow is a signal joined with its card and listing for the query surface.
type SignalRow struct {
	Signal  Signal
	Card    Card
	Listing Listing
}

// SignalFilter narrows the latest-signals query at the store level.
type SignalFilter struct {
	Sort          string
	MinEdgeBp     *int64
	MinConfidence *float64
	MinPriceCents *int64
	IncludeBlank  bool
	Limit         int
}

// LatestSignal is one row of GET /api/signals/latest.
type LatestSignal struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	CardID     string    `json:"cardId"`
	CardName   string    `json:"cardName"`
	SetCode    string    `json:"setCode"`
	Number     string    `json:"number"`
	VariantKey string    `json:"variantKey"`
	CardSlug   string    `json:"cardSlug"`
	ListingID  string    `json:"listingId"`
	ListingURL string    `json:"listingUrl"`
	Source     string    `json:"source"`
	PriceCents int64     `json:"priceCents"`
	PriceUSD   float64   `json:"priceUsd"`
	Currency   string    `json:"currency"`
	Kind       string    `json:"kind"`
	EdgeBp     int64     `json:"edgeBp"`
	EdgePct    float64   `json:"edgePct"`
	EdgePctStr string    `json:"edgePctStr"`
	Confidence float64   `json:"confidence"`
	Thesis     string    `json:"thesis"`
	ProofURL   string    `json:"proofUrl"`
}

// CompView is a comparable sale as shown in a proof payload.
type CompView struct {
	Source     string    `json:"source"`
	PriceCents int64     `json:"priceCents"`
	Currency   string    `json:"currency"`
	SoldAt     time.Time `json:"soldAt"`
}

// SignalProof backs one signal with the data it was scored from.
type SignalProof struct {
	Signal       Signal           `json:"signal"`
	Card         *Card            `json:"card"`
	Listing      *Listing         `json:"listing"`
	Features     *FeatureSnapshot `json:"features"`
	Comps        []CompView       `json:"comps"`
	SparklineURL string           `json:"sparklineUrl,omitempty"`
}

// FairValueQuote is the response of GET /api/fv.
type FairValueQuote struct {
	Name        string    `json:"name"`
	Set         string    `json:"set"`
	Grade       string    `json:"grade"`
	Language    string    `json:"language"`
	ListPrice   float64   `json:"list_price"`
	FairValue   float64   `json:"fv"`
	DiscountPct float64   `json:"discount_pct"`
	Confidence  float64   `json:"confidence"`
	Qualified   bool      `json:"qualified"`
	Comps       int       `json:"comps"`
	Sources     []string  `json:"sources"`
	Reconciled  FairValue `json:"reconciled"`
}

// FxRate is USD per one unit of Code.
type FxRate struct {
	Code       string
	USDPerUnit float64
}
