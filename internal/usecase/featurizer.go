package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
	"CardSignals/internal/services/features"
	applogger "CardSignals/pkg/logger"
	"CardSignals/pkg/metrics"
	"CardSignals/pkg/resilience"
	"CardSignals/pkg/util"
)

// SnapshotStore is what the aggregator reads from and writes to.
type SnapshotStore interface {
	domrepo.SaleReader
	domrepo.TouchedCardReader
	domrepo.SnapshotWriter
}

// FeatureAggregator turns raw sales into per-card, per-window snapshots.
type FeatureAggregator struct {
	store   SnapshotStore
	exec    *resilience.Executor
	metrics domrepo.Metrics
	l       *applogger.Logger
	workers int
	windows []int
	now     func() time.Time
}

type AggregatorOption func(*FeatureAggregator)

func WithAggregatorWorkers(n int) AggregatorOption {
	return func(a *FeatureAggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

func WithAggregatorExecutor(e *resilience.Executor) AggregatorOption {
	return func(a *FeatureAggregator) { a.exec = e }
}

func WithAggregatorMetrics(m domrepo.Metrics) AggregatorOption {
	return func(a *FeatureAggregator) { a.metrics = m }
}

func WithAggregatorLogger(l *applogger.Logger) AggregatorOption {
	return func(a *FeatureAggregator) { a.l = l }
}

func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *FeatureAggregator) { a.now = now }
}

func NewFeatureAggregator(store SnapshotStore, opts ...AggregatorOption) *FeatureAggregator {
	a := &FeatureAggregator{
		store:   store,
		metrics: metrics.Nop{},
		l:       applogger.Nop(),
		workers: 4,
		windows: models.CanonicalWindows,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.exec == nil {
		a.exec = resilience.New(resilience.WithName("aggregator"))
	}
	return a
}

// ComputeSnapshot summarises one card over the trailing window. A nil
// snapshot with a nil error means fewer than three usable sales.
func (a *FeatureAggregator) ComputeSnapshot(ctx context.Context, cardID string, windowDays int) (*models.FeatureSnapshot, error) {
	if err := domrepo.ValidateWindow(windowDays); err != nil {
		return nil, err
	}
	now := a.now()
	since := util.DaysAgo(now, windowDays)
	sales, err := resilience.Call(ctx, a.exec, "list_sales", func(ctx context.Context) ([]models.CompSale, error) {
		return a.store.ListSalesSince(ctx, cardID, since)
	})
	if err != nil {
		return nil, fmt.Errorf("compute snapshot %s/%d: %w", cardID, windowDays, err)
	}
	return features.BuildSnapshot(cardID, windowDays, sales, now), nil
}

// RefreshTouched recomputes every canonical window of each card that sold
// within the last hours. Per-unit failures are counted, not returned. An
// unavailable store stops the pass and returns the counts so far.
func (a *FeatureAggregator) RefreshTouched(ctx context.Context, hours int) (models.RefreshResult, error) {
	var res models.RefreshResult
	if hours <= 0 {
		return res, fmt.Errorf("refresh touched: hours must be positive, got %d", hours)
	}
	start := time.Now()
	defer func() { a.metrics.RecordLatency("refresh_touched", time.Since(start).Seconds()) }()

	now := a.now()
	since := now.Add(-time.Duration(hours) * time.Hour)
	cards, err := resilience.Call(ctx, a.exec, "touched_cards", func(ctx context.Context) ([]string, error) {
		return a.store.TouchedCards(ctx, since)
	})
	if err != nil {
		a.metrics.RecordError("touched_cards")
		return res, fmt.Errorf("refresh touched: %w: %w", domrepo.ErrStoreUnavailable, err)
	}
	res.CardsTouched = len(cards)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		fatal   error
		jobs    = make(chan string)
		workers = a.workers
	)
	if workers > len(cards) {
		workers = len(cards)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cardID := range jobs {
				out, err := a.refreshCard(runCtx, cardID, now)
				mu.Lock()
				res.SnapshotsWritten += out.SnapshotsWritten
				res.Insufficient += out.Insufficient
				res.Failed += out.Failed
				if err != nil && fatal == nil {
					fatal = err
					cancel()
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, id := range cards {
		select {
		case jobs <- id:
		case <-runCtx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if fatal != nil {
		return res, fmt.Errorf("refresh touched: %w: %w", domrepo.ErrStoreUnavailable, fatal)
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("refresh touched: %w", err)
	}

	a.l.Info("refreshed touched cards",
		applogger.Int("cards", res.CardsTouched),
		applogger.Int("snapshots", res.SnapshotsWritten),
		applogger.Int("insufficient", res.Insufficient),
		applogger.Int("failed", res.Failed),
		applogger.Duration("duration_ms", time.Since(start)))
	return res, nil
}

// refreshCard reads the card's sales once for the widest window and derives
// each window from that read. The returned error is non-nil only when the
// breaker is open.
func (a *FeatureAggregator) refreshCard(ctx context.Context, cardID string, now time.Time) (models.RefreshResult, error) {
	var out models.RefreshResult
	widest := 0
	for _, w := range a.windows {
		if w > widest {
			widest = w
		}
	}

	sales, err := resilience.Call(ctx, a.exec, "list_sales", func(ctx context.Context) ([]models.CompSale, error) {
		return a.store.ListSalesSince(ctx, cardID, util.DaysAgo(now, widest))
	})
	if err != nil {
		out.Failed = len(a.windows)
		a.metrics.RecordError("list_sales")
		if !errors.Is(err, context.Canceled) {
			a.l.Error("failed to read sales", applogger.String("card_id", cardID), applogger.Error(err))
		}
		return out, breakerErr(err)
	}

	for _, w := range a.windows {
		snap := features.BuildSnapshot(cardID, w, salesSince(sales, util.DaysAgo(now, w)), now)
		if snap == nil {
			out.Insufficient++
			continue
		}
		err := a.exec.Do(ctx, "put_snapshot", func(ctx context.Context) error {
			return a.store.PutSnapshot(ctx, *snap)
		})
		if err != nil {
			out.Failed++
			a.metrics.RecordError("put_snapshot")
			a.l.Error("failed to write snapshot",
				applogger.String("card_id", cardID),
				applogger.Int("window_days", w),
				applogger.Error(err))
			if berr := breakerErr(err); berr != nil {
				return out, berr
			}
			continue
		}
		out.SnapshotsWritten++
		a.metrics.RecordSnapshotWritten(w)
	}
	return out, nil
}

func salesSince(sales []models.CompSale, since time.Time) []models.CompSale {
	out := make([]models.CompSale, 0, len(sales))
	for _, s := range sales {
		if !s.SoldAt.Before(since) {
			out = append(out, s)
		}
	}
	return out
}

func breakerErr(err error) error {
	if resilience.IsBreakerOpen(err) {
		return err
	}
	return nil
}
