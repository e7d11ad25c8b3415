package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"CardSignals/internal/domain/models"
	"CardSignals/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFx struct {
	calls int
	rates []models.FxRate
	err   error
}

func (c *countingFx) FxRates(context.Context) ([]models.FxRate, error) {
	c.calls++
	return c.rates, c.err
}

func TestFxNormalizer(t *testing.T) {
	reader := &countingFx{rates: []models.FxRate{{Code: "eur", USDPerUnit: 1.1}}}
	fx := NewFxNormalizer(reader, time.Minute)
	ctx := context.Background()

	usd, err := fx.USDCents(ctx, 1000, "USD")
	require.NoError(t, err)
	assert.Nil(t, usd)
	assert.Zero(t, reader.calls, "USD never loads the table")

	usd, err = fx.USDCents(ctx, 1000, "eur")
	require.NoError(t, err)
	require.NotNil(t, usd)
	assert.EqualValues(t, 1100, *usd)

	usd, err = fx.USDCents(ctx, 1000, "JPY")
	require.NoError(t, err)
	assert.Nil(t, usd)
	assert.Equal(t, 1, reader.calls)
}

func TestFxNormalizerKeepsStaleTable(t *testing.T) {
	reader := &countingFx{rates: []models.FxRate{{Code: "GBP", USDPerUnit: 1.25}}}
	fx := NewFxNormalizer(reader, time.Minute)
	clock := testNow
	fx.now = func() time.Time { return clock }

	usd, err := fx.USDCents(context.Background(), 400, "GBP")
	require.NoError(t, err)
	require.NotNil(t, usd)

	clock = clock.Add(2 * time.Minute)
	reader.err = errors.New("db down")
	usd, err = fx.USDCents(context.Background(), 400, "GBP")
	require.NoError(t, err)
	require.NotNil(t, usd)
	assert.EqualValues(t, 500, *usd)
	assert.Equal(t, 2, reader.calls)

	cold := NewFxNormalizer(&countingFx{err: errors.New("db down")}, time.Minute)
	_, err = cold.USDCents(context.Background(), 400, "GBP")
	require.Error(t, err)
}

func TestSalesHandler(t *testing.T) {
	store := repository.NewMemoryStore()
	store.SetFxRate("EUR", 1.1)
	h := NewKafkaSalesHandler("comp-sales", store, NewFxNormalizer(store, time.Minute), nil, nil)
	ctx := context.Background()
	msg := []byte(`{"card":{"id":"c1","name":" Charizard ","set_code":"BASE","number":"4"},"source":" EBAY ","external_id":"x1","price_cents":1000,"currency":"eur","sold_at":"2024-06-01T10:00:00Z"}`)

	assert.Equal(t, "comp-sales", h.Topic())
	require.NoError(t, h.Handle(ctx, msg))
	require.NoError(t, h.Handle(ctx, msg))

	sales, err := store.ListSalesSince(ctx, "c1", time.Time{})
	require.NoError(t, err)
	require.Len(t, sales, 1, "duplicates are ignored")
	s := sales[0]
	assert.Equal(t, "ebay", s.Source)
	assert.Equal(t, "EUR", s.Currency)
	require.NotNil(t, s.PriceCentsUSD)
	assert.EqualValues(t, 1100, *s.PriceCentsUSD)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), s.SoldAt)

	card, err := store.GetCard(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Charizard", card.Name)
}

func TestSalesHandlerSkipsMalformed(t *testing.T) {
	store := repository.NewMemoryStore()
	h := NewKafkaSalesHandler("comp-sales", store, nil, nil, nil)
	ctx := context.Background()

	for _, msg := range []string{
		`not json`,
		`{"card_id":"c1","source":"ebay","external_id":"x","price_cents":100,"currency":"USD","sold_at":"yesterday"}`,
		`{"card_id":"c1","source":"ebay","price_cents":100,"currency":"USD","sold_at":"2024-06-01T10:00:00Z"}`,
		`{"card_id":"","source":"ebay","external_id":"x","price_cents":100,"currency":"USD","sold_at":"2024-06-01T10:00:00Z"}`,
		`{"card_id":"c1","source":"ebay","external_id":"x","price_cents":-1,"currency":"USD","sold_at":"2024-06-01T10:00:00Z"}`,
	} {
		assert.NoError(t, h.Handle(ctx, []byte(msg)), msg)
	}
	cards, err := store.TouchedCards(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, cards)
}

type failingSales struct {
	*repository.MemoryStore
}

func (failingSales) InsertSale(context.Context, models.CompSale) (bool, error) {
	return false, errors.New("connection refused")
}

func TestSalesHandlerReturnsStoreErrors(t *testing.T) {
	h := NewKafkaSalesHandler("comp-sales", failingSales{repository.NewMemoryStore()}, nil, nil, nil)

	err := h.Handle(context.Background(), []byte(`{"card_id":"c1","source":"ebay","external_id":"x","price_cents":100,"currency":"USD","sold_at":"1717236000"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestListingsHandler(t *testing.T) {
	store := repository.NewMemoryStore()
	store.SetFxRate("GBP", 1.25)
	h := NewKafkaListingsHandler("listings", store, NewFxNormalizer(store, time.Minute), nil, nil)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, []byte(`{"id":"l1","card_id":"c1","source":"tcgplayer","price_cents":4000,"currency":"GBP","url":"https://x/l1","seen_at":"2024-06-01T11:00:00Z"}`)))
	require.NoError(t, h.Handle(ctx, []byte(`{"id":"l1","card_id":"c1","source":"tcgplayer","price_cents":3600,"currency":"GBP","url":"https://x/l1","seen_at":"2024-06-01T11:30:00Z"}`)))
	require.NoError(t, h.Handle(ctx, []byte(`{"card_id":"c1","price_cents":3600,"seen_at":"2024-06-01T11:30:00Z"}`)))

	l, err := store.GetListing(ctx, "l1")
	require.NoError(t, err)
	assert.EqualValues(t, 3600, l.PriceCents)
	require.NotNil(t, l.PriceCentsUSD)
	assert.EqualValues(t, 4500, *l.PriceCentsUSD)
	assert.EqualValues(t, 4500, l.AskCents())

	recent, err := store.RecentListings(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
