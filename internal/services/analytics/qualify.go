package analytics

import (
	"CardSignals/pkg/money"
)

// QualifyRule decides whether a fair-value quote is worth surfacing.
type QualifyRule struct {
	MinDiscountPct float64
	MinConfidence  float64 // 0..1
}

func DefaultQualifyRule() QualifyRule {
	return QualifyRule{MinDiscountPct: 15, MinConfidence: 0.5}
}

// Qualification is the outcome of comparing a list price with a fair value.
type Qualification struct {
	FairValue   float64
	DiscountPct float64
	Confidence  float64
	Qualified   bool
}

// Qualify expects confidence on the 0..1 scale. The decision uses the
// unrounded discount; the reported values are rounded for display.
func (q QualifyRule) Qualify(fairValue, listPrice, confidence float64) Qualification {
	discount := 0.0
	if fairValue > 0 {
		discount = (fairValue - listPrice) / fairValue * 100
	}
	out := Qualification{
		FairValue:   money.Round(fairValue, 2),
		DiscountPct: money.Round(discount, 1),
		Confidence:  money.Round(confidence, 2),
		Qualified:   fairValue > 0 && discount >= q.MinDiscountPct && confidence >= q.MinConfidence,
	}
	return out
}

// ReconcilerConfidence01 converts the reconciler's 0..100 confidence to 0..1.
func ReconcilerConfidence01(c float64) float64 {
	return c / 100
}
