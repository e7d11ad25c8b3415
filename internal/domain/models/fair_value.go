package models

// Recommendation classifies a reference price against the reconciled fair value.
type Recommendation string

const (
	Undervalued  Recommendation = "UNDERVALUED"
	FairlyPriced Recommendation = "FAIRLY_PRICED"
	Overvalued   Recommendation = "OVERVALUED"
)

// PriceQuote is one source's estimate. A nil Price means the source had no data.
type PriceQuote struct {
	Source string   `json:"source"`
	Price  *float64 `json:"price"`
}

// Quote builds a quote carrying a price.
func Quote(source string, price float64) PriceQuote {
	return PriceQuote{Source: source, Price: &price}
}

// FairValue is the reconciled estimate. Confidence is on a 0..100 scale.
type FairValue struct {
	ReferencePrice float64        `json:"reference_price"`
	Estimate       float64        `json:"fair_value_estimate"`
	Deviation      float64        `json:"deviation"`
	Confidence     float64        `json:"confidence"`
	SourcesUsed    []string       `json:"sources_used"`
	Recommendation Recommendation `json:"recommendation"`
}
