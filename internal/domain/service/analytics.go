package service

import (
	"context"

	"CardSignals/internal/domain/models"
)

// Reconciler folds independent quotes into one fair value.
type Reconciler interface {
	Reconcile(referencePrice float64, quotes []models.PriceQuote) models.FairValue
}

// QuoteSource fetches a fair-value quote for a card from one provider.
// A provider without data returns a quote with a nil price and no error.
type QuoteSource interface {
	Name() string
	Quote(ctx context.Context, req models.FairValueRequest) (models.PriceQuote, error)
}
