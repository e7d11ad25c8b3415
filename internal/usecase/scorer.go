package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
	"CardSignals/internal/services/analytics"
	applogger "CardSignals/pkg/logger"
	"CardSignals/pkg/metrics"
	"CardSignals/pkg/resilience"

	"github.com/google/uuid"
)

const defaultListingLimit = 200

// ScoringStore is what the scorer reads from and writes to.
type ScoringStore interface {
	domrepo.ListingReader
	domrepo.SnapshotReader
	domrepo.SignalWriter
}

// SignalNotifier receives every newly appended signal.
type SignalNotifier interface {
	Notify(ctx context.Context, sig models.Signal, l models.Listing) error
}

// SignalScorer compares live listings with the card's fair value snapshot.
type SignalScorer struct {
	store    ScoringStore
	scorer   *analytics.EdgeScorer
	notifier SignalNotifier
	exec     *resilience.Executor
	metrics  domrepo.Metrics
	l        *applogger.Logger
	windows  []int
	workers  int
	now      func() time.Time
	newID    func() string
}

type ScorerOption func(*SignalScorer)

// WithScorerWindows sets the snapshot windows considered; the largest present wins.
func WithScorerWindows(windows []int) ScorerOption {
	return func(s *SignalScorer) {
		if w, err := domrepo.NormalizeWindows(windows); err == nil && len(w) > 0 {
			s.windows = w
		}
	}
}

func WithScorerNotifier(n SignalNotifier) ScorerOption {
	return func(s *SignalScorer) { s.notifier = n }
}

func WithScorerWorkers(n int) ScorerOption {
	return func(s *SignalScorer) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithScorerExecutor(e *resilience.Executor) ScorerOption {
	return func(s *SignalScorer) { s.exec = e }
}

func WithScorerMetrics(m domrepo.Metrics) ScorerOption {
	return func(s *SignalScorer) { s.metrics = m }
}

func WithScorerLogger(l *applogger.Logger) ScorerOption {
	return func(s *SignalScorer) { s.l = l }
}

func WithScorerClock(now func() time.Time) ScorerOption {
	return func(s *SignalScorer) { s.now = now }
}

func WithScorerIDs(newID func() string) ScorerOption {
	return func(s *SignalScorer) { s.newID = newID }
}

func NewSignalScorer(store ScoringStore, scorer *analytics.EdgeScorer, opts ...ScorerOption) *SignalScorer {
	s := &SignalScorer{
		store:   store,
		scorer:  scorer,
		metrics: metrics.Nop{},
		l:       applogger.Nop(),
		windows: []int{models.Window90, models.Window30},
		workers: 4,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scorer == nil {
		s.scorer = analytics.NewEdgeScorer(analytics.DefaultWeights(), analytics.DefaultGuardrails())
	}
	if s.exec == nil {
		s.exec = resilience.New(resilience.WithName("scorer"))
	}
	return s
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeNoSnapshot
	outcomeGuardrail
	outcomeInvalid
	outcomeError
)

// ScoreListings scores the newest listings. Each listing ends in exactly one
// bucket of the result. Only an unavailable store is returned as an error.
func (s *SignalScorer) ScoreListings(ctx context.Context, limit int) (models.ScoreResult, error) {
	var res models.ScoreResult
	if limit <= 0 {
		limit = defaultListingLimit
	}
	start := time.Now()
	defer func() { s.metrics.RecordLatency("score_listings", time.Since(start).Seconds()) }()

	listings, err := resilience.Call(ctx, s.exec, "recent_listings", func(ctx context.Context) ([]models.Listing, error) {
		return s.store.RecentListings(ctx, limit)
	})
	if err != nil {
		s.metrics.RecordError("recent_listings")
		return res, fmt.Errorf("score listings: %w: %w", domrepo.ErrStoreUnavailable, err)
	}

	now := s.now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		fatal   error
		jobs    = make(chan models.Listing)
		workers = s.workers
	)
	if workers > len(listings) {
		workers = len(listings)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for l := range jobs {
				o, err := s.scoreOne(runCtx, l, now)
				mu.Lock()
				tally(&res, o)
				if err != nil && fatal == nil {
					fatal = err
					cancel()
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, l := range listings {
		select {
		case jobs <- l:
		case <-runCtx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if fatal != nil {
		return res, fmt.Errorf("score listings: %w: %w", domrepo.ErrStoreUnavailable, fatal)
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("score listings: %w", err)
	}

	s.l.Info("scored listings",
		applogger.Int("listings", len(listings)),
		applogger.Int("created", res.Created),
		applogger.Int("dropped_no_snapshot", res.DroppedNoSnapshot),
		applogger.Int("dropped_guardrail", res.DroppedGuardrail),
		applogger.Int("dropped_invalid", res.DroppedInvalid),
		applogger.Int("dropped_error", res.DroppedError),
		applogger.Duration("duration_ms", time.Since(start)))
	return res, nil
}

func tally(res *models.ScoreResult, o outcome) {
	switch o {
	case outcomeCreated:
		res.Created++
	case outcomeNoSnapshot:
		res.DroppedNoSnapshot++
	case outcomeGuardrail:
		res.DroppedGuardrail++
	case outcomeInvalid:
		res.DroppedInvalid++
	case outcomeError:
		res.DroppedError++
	}
}

func (s *SignalScorer) scoreOne(ctx context.Context, l models.Listing, now time.Time) (outcome, error) {
	if err := l.Validate(); err != nil {
		s.metrics.RecordDropped(models.DropInvalid)
		s.l.Warn("skipping malformed listing", applogger.String("listing_id", l.ID), applogger.Error(err))
		return outcomeInvalid, nil
	}

	snaps, err := resilience.Call(ctx, s.exec, "get_snapshots", func(ctx context.Context) ([]models.FeatureSnapshot, error) {
		return s.store.GetSnapshots(ctx, l.CardID, s.windows)
	})
	if err != nil {
		s.metrics.RecordDropped(models.DropError)
		s.l.Error("failed to read snapshots", applogger.String("card_id", l.CardID), applogger.Error(err))
		return outcomeError, breakerErr(err)
	}
	snap, ok := s.pick(snaps)
	if !ok {
		s.metrics.RecordDropped(models.DropNoSnapshot)
		return outcomeNoSnapshot, nil
	}

	ev := s.scorer.Evaluate(snap, l, now)
	if !ev.Passed {
		s.metrics.RecordDropped(models.DropGuardrail)
		return outcomeGuardrail, nil
	}

	sig := models.Signal{
		ID:         s.newID(),
		CardID:     l.CardID,
		ListingID:  l.ID,
		Kind:       ev.Kind,
		EdgeBp:     ev.EdgeBp,
		Confidence: ev.Confidence,
		Thesis:     "",
		CreatedAt:  now,
	}
	err = s.exec.Do(ctx, "append_signal", func(ctx context.Context) error {
		return s.store.AppendSignal(ctx, sig)
	})
	if err != nil {
		s.metrics.RecordDropped(models.DropError)
		s.l.Error("failed to append signal", applogger.String("listing_id", l.ID), applogger.Error(err))
		return outcomeError, breakerErr(err)
	}
	s.metrics.RecordSignal(sig.Kind)

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, sig, l); err != nil {
			s.metrics.RecordError("notify_signal")
			s.l.Warn("signal alert failed", applogger.String("signal_id", sig.ID), applogger.Error(err))
		}
	}
	return outcomeCreated, nil
}

// pick returns the snapshot of the largest configured window present.
func (s *SignalScorer) pick(snaps []models.FeatureSnapshot) (models.FeatureSnapshot, bool) {
	for _, w := range s.windows {
		for _, sn := range snaps {
			if sn.WindowDays == w {
				return sn, true
			}
		}
	}
	return models.FeatureSnapshot{}, false
}
