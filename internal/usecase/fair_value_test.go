package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CardSignals/internal/domain/models"
	"CardSignals/internal/repository"
	"CardSignals/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReconciler struct {
	mu     sync.Mutex
	calls  int
	quotes []models.PriceQuote
	out    models.FairValue
}

func (r *stubReconciler) Reconcile(ref float64, quotes []models.PriceQuote) models.FairValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.quotes = quotes
	out := r.out
	out.ReferencePrice = ref
	return out
}

type stubSource struct {
	name  string
	price float64
	err   error
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Quote(context.Context, models.FairValueRequest) (models.PriceQuote, error) {
	if s.err != nil {
		return models.PriceQuote{}, s.err
	}
	return models.Quote(s.name, s.price), nil
}

func seedCatalog(t *testing.T) *repository.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.UpsertCard(ctx, models.Card{ID: "c1", Name: "Charizard", SetCode: "BASE", Number: "4"}))
	seedSales(t, store,
		sale("c1", "a", 10000, 24*time.Hour),
		sale("c1", "b", 0, 48*time.Hour),
		sale("c1", "c", 12000, 72*time.Hour),
	)
	return store
}

func TestNormalize(t *testing.T) {
	req := Normalize(models.FairValueRequest{Name: " Charizard ", Set: " base", Grade: " psa10 "})
	assert.Equal(t, "Charizard", req.Name)
	assert.Equal(t, "base", req.Set)
	assert.Equal(t, "PSA10", req.Grade)
	assert.Equal(t, "EN", req.Language)

	req = Normalize(models.FairValueRequest{Language: "jp"})
	assert.Equal(t, "RAW", req.Grade)
	assert.Equal(t, "JP", req.Language)
}

func TestSanitizeComps(t *testing.T) {
	usd := int64(0)
	out := SanitizeComps([]models.CompSale{
		{ID: 1, PriceCents: 500},
		{ID: 2, PriceCents: 0},
		{ID: 3, PriceCents: 900, PriceCentsUSD: &usd},
	})
	require.Len(t, out, 1)
	assert.EqualValues(t, 1, out[0].ID)
}

func TestQuoteRejectsInvalidRequest(t *testing.T) {
	svc := NewFairValueService(nil, nil, &stubReconciler{})

	for _, req := range []models.FairValueRequest{
		{Set: "BASE", ListPrice: 10},
		{Name: "Charizard", ListPrice: 10},
		{Name: "Charizard", Set: "BASE"},
		{Name: "Charizard", Set: "BASE", ListPrice: -5},
	} {
		_, err := svc.Quote(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidQuery)
	}
}

func TestQuoteQualifies(t *testing.T) {
	store := seedCatalog(t)
	rec := &stubReconciler{out: models.FairValue{Estimate: 100, Confidence: 80, SourcesUsed: []string{"ebay", "tcg"}}}
	svc := NewFairValueService(store, store, rec,
		WithFairValueClock(fixedClock),
		WithQuoteSources(stubSource{name: "tcg", price: 110}, stubSource{name: "down", err: errors.New("timeout")}))

	q, err := svc.Quote(context.Background(), models.FairValueRequest{Name: "charizard", Set: "base", ListPrice: 80})
	require.NoError(t, err)

	assert.Equal(t, 2, q.Comps)
	assert.InDelta(t, 100, q.FairValue, 1e-9)
	assert.InDelta(t, 20, q.DiscountPct, 1e-9)
	assert.InDelta(t, 0.8, q.Confidence, 1e-9)
	assert.True(t, q.Qualified)
	assert.Equal(t, "RAW", q.Grade)
	assert.Equal(t, []string{"ebay", "tcg"}, q.Sources)

	require.Len(t, rec.quotes, 4)
	assert.InDelta(t, 100, *rec.quotes[0].Price, 1e-9, "newest comp first")
	assert.InDelta(t, 120, *rec.quotes[1].Price, 1e-9)
	assert.InDelta(t, 110, *rec.quotes[2].Price, 1e-9)
	assert.Equal(t, "down", rec.quotes[3].Source)
	assert.Nil(t, rec.quotes[3].Price)
}

func TestQuoteWithoutSourcesHasNoFairValue(t *testing.T) {
	rec := &stubReconciler{out: models.FairValue{Estimate: 80, Confidence: 0}}
	svc := NewFairValueService(repository.NewMemoryStore(), repository.NewMemoryStore(), rec)

	q, err := svc.Quote(context.Background(), models.FairValueRequest{Name: "Pikachu", Set: "JUNGLE", ListPrice: 80})
	require.NoError(t, err)
	assert.Zero(t, q.FairValue)
	assert.Zero(t, q.DiscountPct)
	assert.False(t, q.Qualified)
	assert.Zero(t, q.Comps)
}

func TestQuoteLowConfidenceDoesNotQualify(t *testing.T) {
	store := seedCatalog(t)
	rec := &stubReconciler{out: models.FairValue{Estimate: 100, Confidence: 30, SourcesUsed: []string{"ebay"}}}
	svc := NewFairValueService(store, store, rec, WithFairValueClock(fixedClock))

	q, err := svc.Quote(context.Background(), models.FairValueRequest{Name: "Charizard", Set: "BASE", ListPrice: 50})
	require.NoError(t, err)
	assert.InDelta(t, 50, q.DiscountPct, 1e-9)
	assert.False(t, q.Qualified)
}

func TestQuoteIsCached(t *testing.T) {
	store := seedCatalog(t)
	rec := &stubReconciler{out: models.FairValue{Estimate: 100, Confidence: 80, SourcesUsed: []string{"ebay"}}}
	c := cache.NewMemoryCache()
	svc := NewFairValueService(store, store, rec, WithFairValueClock(fixedClock), WithFairValueCache(c, time.Minute))

	req := models.FairValueRequest{Name: "Charizard", Set: "BASE", ListPrice: 80}
	first, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, first.FairValue, second.FairValue)
	assert.Equal(t, first.Qualified, second.Qualified)
}
