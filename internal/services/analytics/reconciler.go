package analytics

import (
	"math"

	"CardSignals/internal/domain/models"
	domsvc "CardSignals/internal/domain/service"
	"CardSignals/pkg/util"
)

// ReconcilerConfig holds the classification thresholds and confidence model.
type ReconcilerConfig struct {
	UpperThreshold     float64 // deviation above this is undervalued
	LowerThreshold     float64 // deviation below this is overvalued
	PerQuoteConfidence float64
	ConfidenceCap      float64
}

type ReconcilerOption func(*ReconcilerConfig)

func WithThresholds(lower, upper float64) ReconcilerOption {
	return func(c *ReconcilerConfig) {
		c.LowerThreshold = lower
		c.UpperThreshold = upper
	}
}

func WithConfidenceModel(perQuote, cap float64) ReconcilerOption {
	return func(c *ReconcilerConfig) {
		c.PerQuoteConfidence = perQuote
		c.ConfidenceCap = cap
	}
}

// Reconciler averages independent quotes into one fair value.
type Reconciler struct {
	cfg ReconcilerConfig
}

func NewReconciler(opts ...ReconcilerOption) *Reconciler {
	cfg := ReconcilerConfig{
		UpperThreshold:     0.15,
		LowerThreshold:     -0.15,
		PerQuoteConfidence: 30,
		ConfidenceCap:      100,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reconciler{cfg: cfg}
}

// Reconcile takes the plain mean of the present, finite quotes. Confidence
// is on a 0..100 scale and grows with the number of contributing sources.
func (r *Reconciler) Reconcile(referencePrice float64, quotes []models.PriceQuote) models.FairValue {
	sum := 0.0
	sources := make([]string, 0, len(quotes))
	for _, q := range quotes {
		if q.Price == nil || !util.Finite(*q.Price) {
			continue
		}
		sum += *q.Price
		sources = append(sources, q.Source)
	}

	if len(sources) == 0 {
		return models.FairValue{
			ReferencePrice: referencePrice,
			Estimate:       referencePrice,
			Confidence:     0,
			SourcesUsed:    []string{},
			Recommendation: models.FairlyPriced,
		}
	}

	fair := sum / float64(len(sources))
	dev := 0.0
	if referencePrice > 0 {
		dev = (fair - referencePrice) / referencePrice
	}

	conf := math.Min(float64(len(sources))*r.cfg.PerQuoteConfidence, r.cfg.ConfidenceCap)

	return models.FairValue{
		ReferencePrice: referencePrice,
		Estimate:       fair,
		Deviation:      dev,
		Confidence:     util.Clamp(conf, 0, 100),
		SourcesUsed:    sources,
		Recommendation: r.classify(dev),
	}
}

func (r *Reconciler) classify(dev float64) models.Recommendation {
	switch {
	case dev > r.cfg.UpperThreshold:
		return models.Undervalued
	case dev < r.cfg.LowerThreshold:
		return models.Overvalued
	default:
		return models.FairlyPriced
	}
}

var _ domsvc.Reconciler = (*Reconciler)(nil)
