package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
	"CardSignals/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuery(store *repository.MemoryStore) *SignalsQueryService {
	return NewSignalsQueryService(SignalsQueryDeps{
		Signals: store, Cards: store, Listings: store, Snaps: store, Comps: store,
	}, "https://cards.example.com/")
}

func seedSignals(t *testing.T) *repository.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	for _, c := range []models.Card{
		{ID: "c1", Name: "Charizard", SetCode: "BASE", Number: "4"},
		{ID: "c2", Name: "Blastoise", SetCode: "BASE", Number: "2", VariantKey: "1ED"},
		{ID: "c3", Name: "Venusaur", SetCode: "BASE", Number: "15"},
	} {
		require.NoError(t, store.UpsertCard(ctx, c))
	}
	for _, l := range []models.Listing{
		ask("l1", "c1", 70000, time.Hour),
		ask("l2", "c1", 80000, time.Hour),
		ask("l3", "c2", 900, time.Hour),
		ask("l4", "c3", 20000, time.Hour),
	} {
		require.NoError(t, store.UpsertListing(ctx, l))
	}
	for _, s := range []models.Signal{
		{ID: "s1", CardID: "c1", ListingID: "l1", Kind: models.SignalUndervalued, EdgeBp: 3000, Confidence: 0.91, Thesis: "cheap", CreatedAt: testNow},
		{ID: "s2", CardID: "c1", ListingID: "l2", Kind: models.SignalUndervalued, EdgeBp: 2000, Confidence: 0.95, Thesis: "fine", CreatedAt: testNow},
		{ID: "s3", CardID: "c2", ListingID: "l3", Kind: models.SignalWatch, EdgeBp: -1250, Confidence: 0.2, Thesis: "pricey", CreatedAt: testNow},
		{ID: "s4", CardID: "c3", ListingID: "l4", Kind: models.SignalUndervalued, EdgeBp: 5000, Confidence: 0.5, CreatedAt: testNow},
	} {
		require.NoError(t, store.AppendSignal(ctx, s))
	}
	return store
}

func ids(rows []models.LatestSignal) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func TestLatestDeduplicatesPerCard(t *testing.T) {
	q := newQuery(seedSignals(t))

	rows, err := q.Latest(context.Background(), models.LatestSignalsRequest{Sort: "edge", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s3"}, ids(rows))

	first := rows[0]
	assert.Equal(t, "Charizard", first.CardName)
	assert.Equal(t, "base-4-en", first.CardSlug)
	assert.InDelta(t, 30, first.EdgePct, 1e-9)
	assert.Equal(t, "+30%", first.EdgePctStr)
	assert.InDelta(t, 700, first.PriceUSD, 1e-9)
	assert.Equal(t, "https://cards.example.com/signals/s1/proof", first.ProofURL)

	assert.Equal(t, "-12.5%", rows[1].EdgePctStr)
	assert.Equal(t, "base-2-1ed", rows[1].CardSlug)
}

func TestLatestIncludeBlankAndSort(t *testing.T) {
	q := newQuery(seedSignals(t))

	rows, err := q.Latest(context.Background(), models.LatestSignalsRequest{Sort: "edge", Limit: 20, IncludeBlank: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"s4", "s1", "s3"}, ids(rows))

	rows, err = q.Latest(context.Background(), models.LatestSignalsRequest{Sort: "conf", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s3"}, ids(rows), "highest confidence signal of c1 wins")
}

func TestLatestFilters(t *testing.T) {
	q := newQuery(seedSignals(t))
	minEdge := int64(1500)
	minPrice := 100.0

	rows, err := q.Latest(context.Background(), models.LatestSignalsRequest{Sort: "edge", Limit: 20, MinEdgeBp: &minEdge})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids(rows))

	rows, err = q.Latest(context.Background(), models.LatestSignalsRequest{Sort: "edge", Limit: 20, MinPriceUSD: &minPrice})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids(rows))

	rows, err = q.Latest(context.Background(), models.LatestSignalsRequest{Sort: "edge", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids(rows))
}

func TestProof(t *testing.T) {
	store := seedSignals(t)
	ctx := context.Background()
	require.NoError(t, store.PutSnapshot(ctx, models.FeatureSnapshot{CardID: "c1", WindowDays: 30, MedianCents: 100000, P05Cents: 90000, P95Cents: 110000, Volume: 8, UpdatedAt: testNow}))
	for i := 0; i < 7; i++ {
		seedSales(t, store, sale("c1", string(rune('a'+i)), int64(95000+i*1000), time.Duration(i+1)*time.Hour))
	}
	q := newQuery(store)

	p, err := q.Proof(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, p.Card)
	require.NotNil(t, p.Listing)
	require.NotNil(t, p.Features)
	assert.Equal(t, "Charizard", p.Card.Name)
	assert.Equal(t, "l1", p.Listing.ID)
	assert.EqualValues(t, 100000, p.Features.MedianCents)
	require.Len(t, p.Comps, 5)
	assert.EqualValues(t, 95000, p.Comps[0].PriceCents, "newest comp first")
	assert.True(t, strings.HasPrefix(p.SparklineURL, "https://quickchart.io/chart?c="))
}

func TestProofWithoutFeatures(t *testing.T) {
	q := newQuery(seedSignals(t))

	p, err := q.Proof(context.Background(), "s3")
	require.NoError(t, err)
	assert.Nil(t, p.Features)
	assert.Empty(t, p.Comps)
	assert.Empty(t, p.SparklineURL)
}

func TestProofUnknownSignal(t *testing.T) {
	q := newQuery(seedSignals(t))

	_, err := q.Proof(context.Background(), "nope")
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestCardSnapshotsAndHistory(t *testing.T) {
	store := seedSignals(t)
	require.NoError(t, store.PutSnapshot(context.Background(), models.FeatureSnapshot{CardID: "c1", WindowDays: 7, MedianCents: 1, Volume: 3}))
	q := newQuery(store)

	snaps, err := q.CardSnapshots(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, snaps, 1)

	_, err = q.CardHistory(context.Background(), "c1", 10)
	assert.ErrorIs(t, err, domrepo.ErrNotConfigured)
}
