package usecase

import (
	"context"
	"testing"
	"time"

	"CardSignals/internal/domain/models"
	"CardSignals/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func sale(cardID, ext string, cents int64, age time.Duration) models.CompSale {
	return models.CompSale{
		CardID:     cardID,
		Source:     "ebay",
		ExternalID: ext,
		PriceCents: cents,
		Currency:   "USD",
		SoldAt:     testNow.Add(-age),
	}
}

func seedSales(t *testing.T, store *repository.MemoryStore, sales ...models.CompSale) {
	t.Helper()
	for _, s := range sales {
		_, err := store.InsertSale(context.Background(), s)
		require.NoError(t, err)
	}
}

func TestComputeSnapshot(t *testing.T) {
	store := repository.NewMemoryStore()
	seedSales(t, store,
		sale("c1", "a", 9500, time.Hour),
		sale("c1", "b", 10000, 2*time.Hour),
		sale("c1", "c", 10500, 3*time.Hour),
		sale("c1", "old", 50000, 40*24*time.Hour),
	)
	agg := NewFeatureAggregator(store, WithAggregatorClock(fixedClock))

	snap, err := agg.ComputeSnapshot(context.Background(), "c1", 30)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.EqualValues(t, 10000, snap.MedianCents)
	assert.Equal(t, 3, snap.Volume)
	assert.LessOrEqual(t, snap.P05Cents, snap.MedianCents)
	assert.LessOrEqual(t, snap.MedianCents, snap.P95Cents)
	assert.Equal(t, testNow, snap.UpdatedAt)

	wide, err := agg.ComputeSnapshot(context.Background(), "c1", 90)
	require.NoError(t, err)
	require.NotNil(t, wide)
	assert.Equal(t, 4, wide.Volume)
	assert.EqualValues(t, 10250, wide.MedianCents)

	for _, w := range []int{100000, 200000, 1000000} {
		huge, err := agg.ComputeSnapshot(context.Background(), "c1", w)
		require.NoError(t, err)
		require.NotNil(t, huge, "window %d", w)
		assert.Equal(t, 4, huge.Volume)
		assert.Equal(t, w, huge.WindowDays)
	}
}

func TestComputeSnapshotNeedsThreeSales(t *testing.T) {
	store := repository.NewMemoryStore()
	seedSales(t, store, sale("c1", "a", 1000, time.Hour), sale("c1", "b", 1100, time.Hour))
	agg := NewFeatureAggregator(store, WithAggregatorClock(fixedClock))

	snap, err := agg.ComputeSnapshot(context.Background(), "c1", 7)
	require.NoError(t, err)
	assert.Nil(t, snap)

	_, err = agg.ComputeSnapshot(context.Background(), "c1", 0)
	require.Error(t, err)
}

func TestComputeSnapshotFlatPrices(t *testing.T) {
	store := repository.NewMemoryStore()
	seedSales(t, store,
		sale("c1", "a", 2500, time.Hour),
		sale("c1", "b", 2500, 2*time.Hour),
		sale("c1", "c", 2500, 3*time.Hour),
	)
	agg := NewFeatureAggregator(store, WithAggregatorClock(fixedClock))

	snap, err := agg.ComputeSnapshot(context.Background(), "c1", 7)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Zero(t, snap.VolatilityBp)
	assert.EqualValues(t, 2500, snap.P05Cents)
	assert.EqualValues(t, 2500, snap.P95Cents)
}

func TestRefreshTouched(t *testing.T) {
	store := repository.NewMemoryStore()
	seedSales(t, store,
		sale("c1", "a", 9000, time.Hour),
		sale("c1", "b", 10000, 2*time.Hour),
		sale("c1", "c", 11000, 3*time.Hour),
		sale("c1", "d", 50000, 20*24*time.Hour),
		sale("c2", "e", 700, time.Hour),
		sale("c2", "f", 800, time.Hour),
		sale("c3", "g", 700, 5*24*time.Hour),
	)
	agg := NewFeatureAggregator(store, WithAggregatorClock(fixedClock), WithAggregatorWorkers(2))

	res, err := agg.RefreshTouched(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, models.RefreshResult{CardsTouched: 2, SnapshotsWritten: 3, Insufficient: 3}, res)

	snaps, err := store.GetSnapshots(context.Background(), "c1", models.CanonicalWindows)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, 90, snaps[0].WindowDays)
	assert.EqualValues(t, 10500, snaps[0].MedianCents)
	assert.EqualValues(t, 10000, snaps[2].MedianCents)

	again, err := agg.RefreshTouched(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, res, again)
	after, err := store.GetSnapshots(context.Background(), "c1", models.CanonicalWindows)
	require.NoError(t, err)
	assert.Equal(t, snaps, after)
}

func TestRefreshTouchedRejectsNonPositiveHours(t *testing.T) {
	agg := NewFeatureAggregator(repository.NewMemoryStore())

	_, err := agg.RefreshTouched(context.Background(), 0)
	require.Error(t, err)
	_, err = agg.RefreshTouched(context.Background(), -3)
	require.Error(t, err)
}

func TestRefreshTouchedNoCards(t *testing.T) {
	agg := NewFeatureAggregator(repository.NewMemoryStore(), WithAggregatorClock(fixedClock))

	res, err := agg.RefreshTouched(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, models.RefreshResult{}, res)
}
