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

func newTestPipeline(store *repository.MemoryStore) *Pipeline {
	agg := NewFeatureAggregator(store, WithAggregatorClock(fixedClock))
	scorer := NewSignalScorer(store, nil, WithScorerClock(fixedClock))
	return NewPipeline(agg, scorer, store, PipelineConfig{LockKey: 42, TouchedHours: 24, ListingLimit: 10, Timeout: time.Minute}, nil)
}

func TestPipelineRun(t *testing.T) {
	store := repository.NewMemoryStore()
	seedSales(t, store,
		sale("c1", "a", 9000, time.Hour),
		sale("c1", "b", 10000, 2*time.Hour),
		sale("c1", "c", 11000, 3*time.Hour),
	)
	require.NoError(t, store.UpsertListing(context.Background(), ask("l1", "c1", 8000, time.Hour)))

	res, err := newTestPipeline(store).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 3, res.Refresh.SnapshotsWritten)
	assert.Equal(t, models.ScoreResult{Created: 1}, res.Score)

	sigs := store.Signals()
	require.Len(t, sigs, 1)
	assert.EqualValues(t, 2000, sigs[0].EdgeBp)
}

func TestPipelineSkipsWhenLockHeld(t *testing.T) {
	store := repository.NewMemoryStore()
	unlock, ok, err := store.TryLock(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, ok)

	p := newTestPipeline(store)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	refreshed, err := p.Refresh(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, models.RefreshResult{Skipped: true}, refreshed)

	out, err := NewJobService(p, nil).Featurize(context.Background(), models.FeaturizeJobRequest{SinceHours: 24})
	require.NoError(t, err)
	require.NotNil(t, out.Refresh)
	assert.True(t, out.Refresh.Skipped)
	require.NoError(t, NewFeaturizeJob(p, nil).Handle(context.Background(), []byte(`{"since_hours":24}`)))

	unlock()
	res, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

type brokenLocker struct{}

func (brokenLocker) TryLock(context.Context, int64) (func(), bool, error) {
	return nil, false, errors.New("pool closed")
}

func TestPipelineLockError(t *testing.T) {
	store := repository.NewMemoryStore()
	agg := NewFeatureAggregator(store)
	p := NewPipeline(agg, NewSignalScorer(store, nil), brokenLocker{}, PipelineConfig{}, nil)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool closed")
}
