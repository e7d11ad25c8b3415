package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
	"CardSignals/internal/repository"
	"CardSignals/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("sig-%d", s.n)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, sig models.Signal, l models.Listing) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, l.ID)
	return n.err
}

func ask(id, cardID string, cents int64, age time.Duration) models.Listing {
	return models.Listing{ID: id, CardID: cardID, Source: "ebay", PriceCents: cents, Currency: "USD", SeenAt: testNow.Add(-age)}
}

func seedScoring(t *testing.T) *repository.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.PutSnapshot(ctx, models.FeatureSnapshot{
		CardID: "c1", WindowDays: 90, MedianCents: 10000, P05Cents: 9000, P95Cents: 11000,
		Volume: 10, VolatilityBp: 100, UpdatedAt: testNow,
	}))
	require.NoError(t, store.PutSnapshot(ctx, models.FeatureSnapshot{
		CardID: "c1", WindowDays: 30, MedianCents: 20000, Volume: 5, VolatilityBp: 100, UpdatedAt: testNow,
	}))
	for _, l := range []models.Listing{
		ask("l-good", "c1", 8000, time.Hour),
		ask("l-over", "c1", 12000, 2*time.Hour),
		ask("l-cheap", "c1", 150, 3*time.Hour),
		ask("l-stale", "c1", 8000, 20*24*time.Hour),
		ask("l-nosnap", "c2", 8000, 4*time.Hour),
		ask("l-bad", "", 8000, 5*time.Hour),
	} {
		require.NoError(t, store.UpsertListing(ctx, l))
	}
	return store
}

func TestScoreListingsBuckets(t *testing.T) {
	store := seedScoring(t)
	ids := &seqIDs{}
	notifier := &recordingNotifier{}
	s := NewSignalScorer(store, nil,
		WithScorerClock(fixedClock),
		WithScorerIDs(ids.next),
		WithScorerNotifier(notifier))

	res, err := s.ScoreListings(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, models.ScoreResult{Created: 2, DroppedNoSnapshot: 1, DroppedGuardrail: 2, DroppedInvalid: 1}, res)
	assert.Equal(t, 4, res.Dropped())

	sigs := store.Signals()
	require.Len(t, sigs, 2)
	byListing := map[string]models.Signal{}
	for _, sig := range sigs {
		byListing[sig.ListingID] = sig
		assert.Empty(t, sig.Thesis)
		assert.Equal(t, testNow, sig.CreatedAt)
		assert.GreaterOrEqual(t, sig.Confidence, 0.0)
		assert.LessOrEqual(t, sig.Confidence, 1.0)
	}

	good := byListing["l-good"]
	assert.EqualValues(t, 2000, good.EdgeBp, "the 90 day snapshot wins over the 30 day one")
	assert.Equal(t, models.SignalUndervalued, good.Kind)

	over := byListing["l-over"]
	assert.EqualValues(t, -2000, over.EdgeBp)
	assert.Equal(t, models.SignalWatch, over.Kind)
	assert.Less(t, over.Confidence, good.Confidence)

	sort.Strings(notifier.calls)
	assert.Equal(t, []string{"l-good", "l-over"}, notifier.calls)
}

func TestScoreListingsNotifierFailureKeepsSignal(t *testing.T) {
	store := seedScoring(t)
	s := NewSignalScorer(store, nil,
		WithScorerClock(fixedClock),
		WithScorerNotifier(&recordingNotifier{err: errors.New("broker down")}))

	res, err := s.ScoreListings(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Len(t, store.Signals(), 2)
}

func TestScoreListingsLimit(t *testing.T) {
	store := seedScoring(t)
	s := NewSignalScorer(store, nil, WithScorerClock(fixedClock))

	res, err := s.ScoreListings(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.ScoreResult{Created: 1}, res)
	require.Len(t, store.Signals(), 1)
	assert.Equal(t, "l-good", store.Signals()[0].ListingID)
}

func TestScoreListingsWindowOverride(t *testing.T) {
	store := seedScoring(t)
	s := NewSignalScorer(store, nil, WithScorerClock(fixedClock), WithScorerWindows([]int{30}))

	_, err := s.ScoreListings(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, store.Signals(), 1)
	assert.EqualValues(t, 6000, store.Signals()[0].EdgeBp)
}

type failingSnapshots struct {
	*repository.MemoryStore
	fail map[string]bool
}

func (f failingSnapshots) GetSnapshots(ctx context.Context, cardID string, windows []int) ([]models.FeatureSnapshot, error) {
	if f.fail[cardID] || f.fail["*"] {
		return nil, errors.New("connection reset")
	}
	return f.MemoryStore.GetSnapshots(ctx, cardID, windows)
}

func TestScoreListingsCountsReadErrors(t *testing.T) {
	store := failingSnapshots{MemoryStore: seedScoring(t), fail: map[string]bool{"c2": true}}
	exec := resilience.New(resilience.WithRetries(0, time.Millisecond, time.Millisecond), resilience.WithBreaker(100, time.Minute))
	s := NewSignalScorer(store, nil, WithScorerClock(fixedClock), WithScorerExecutor(exec))

	res, err := s.ScoreListings(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DroppedError)
	assert.Equal(t, 2, res.Created)
}

func TestScoreListingsStopsWhenBreakerOpens(t *testing.T) {
	store := failingSnapshots{MemoryStore: seedScoring(t), fail: map[string]bool{"*": true}}
	exec := resilience.New(resilience.WithRetries(0, time.Millisecond, time.Millisecond), resilience.WithBreaker(1, time.Minute))
	s := NewSignalScorer(store, nil, WithScorerClock(fixedClock), WithScorerExecutor(exec), WithScorerWorkers(1))

	_, err := s.ScoreListings(context.Background(), 50)
	require.Error(t, err)
	assert.ErrorIs(t, err, domrepo.ErrStoreUnavailable)
	assert.Empty(t, store.Signals())
}
