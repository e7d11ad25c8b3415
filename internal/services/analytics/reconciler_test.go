package analytics

import (
	"math"
	"testing"

	"CardSignals/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func quotes(prices ...float64) []models.PriceQuote {
	out := make([]models.PriceQuote, 0, len(prices))
	for i, p := range prices {
		out = append(out, models.Quote(string(rune('a'+i)), p))
	}
	return out
}

func TestReconcileAgreeingQuotes(t *testing.T) {
	fv := NewReconciler().Reconcile(100, quotes(120, 130, 110))

	assert.InDelta(t, 120, fv.Estimate, 1e-9)
	assert.InDelta(t, 0.20, fv.Deviation, 1e-9)
	assert.Equal(t, models.Undervalued, fv.Recommendation)
	assert.Equal(t, 90.0, fv.Confidence)
	assert.Equal(t, []string{"a", "b", "c"}, fv.SourcesUsed)
	assert.Equal(t, 100.0, fv.ReferencePrice)
}

func TestReconcileNoQuotes(t *testing.T) {
	fv := NewReconciler().Reconcile(100, nil)

	assert.Equal(t, 100.0, fv.Estimate)
	assert.Equal(t, 0.0, fv.Confidence)
	assert.Empty(t, fv.SourcesUsed)
	assert.NotNil(t, fv.SourcesUsed)
	assert.Equal(t, models.FairlyPriced, fv.Recommendation)
}

func TestReconcileSkipsAbsentAndNonFinite(t *testing.T) {
	in := []models.PriceQuote{
		{Source: "none"},
		models.Quote("nan", math.NaN()),
		models.Quote("inf", math.Inf(1)),
		models.Quote("ok", 80),
	}
	fv := NewReconciler().Reconcile(100, in)

	assert.Equal(t, 80.0, fv.Estimate)
	assert.Equal(t, []string{"ok"}, fv.SourcesUsed)
	assert.Equal(t, 30.0, fv.Confidence)
	assert.Equal(t, models.Overvalued, fv.Recommendation)
}

func TestReconcileConfidenceCap(t *testing.T) {
	fv := NewReconciler().Reconcile(100, quotes(100, 100, 100, 100, 100))
	assert.Equal(t, 100.0, fv.Confidence)
	assert.Equal(t, models.FairlyPriced, fv.Recommendation)
}

func TestReconcileNonPositiveReference(t *testing.T) {
	fv := NewReconciler().Reconcile(0, quotes(50))
	assert.Equal(t, 0.0, fv.Deviation)
	assert.Equal(t, models.FairlyPriced, fv.Recommendation)
}

func TestReconcileThresholdsAreStrict(t *testing.T) {
	r := NewReconciler()
	assert.Equal(t, models.FairlyPriced, r.Reconcile(100, quotes(115)).Recommendation)
	assert.Equal(t, models.Undervalued, r.Reconcile(100, quotes(115.5)).Recommendation)
	assert.Equal(t, models.Overvalued, r.Reconcile(100, quotes(84)).Recommendation)
}

func TestReconcileCustomConfig(t *testing.T) {
	r := NewReconciler(WithThresholds(-0.05, 0.05), WithConfidenceModel(50, 80))
	fv := r.Reconcile(100, quotes(110, 110))
	assert.Equal(t, models.Undervalued, fv.Recommendation)
	assert.Equal(t, 80.0, fv.Confidence)
}
