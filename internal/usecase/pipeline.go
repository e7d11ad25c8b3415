package usecase

import (
	"context"
	"fmt"
	"time"

	"CardSignals/internal/domain/models"
	domrepo "CardSignals/internal/domain/repository"
	applogger "CardSignals/pkg/logger"
)

// PipelineResult reports one scheduled run.
type PipelineResult struct {
	Skipped bool                 `json:"skipped"`
	Refresh models.RefreshResult `json:"refresh"`
	Score   models.ScoreResult   `json:"score"`
}

// Pipeline runs the batch: refresh touched snapshots, then score listings.
type Pipeline struct {
	agg          *FeatureAggregator
	scorer       *SignalScorer
	locker       domrepo.Locker
	lockKey      int64
	touchedHours int
	listingLimit int
	timeout      time.Duration
	l            *applogger.Logger
}

type PipelineConfig struct {
	LockKey      int64
	TouchedHours int
	ListingLimit int
	Timeout      time.Duration
}

func NewPipeline(agg *FeatureAggregator, scorer *SignalScorer, locker domrepo.Locker, cfg PipelineConfig, l *applogger.Logger) *Pipeline {
	if l == nil {
		l = applogger.Nop()
	}
	if cfg.TouchedHours <= 0 {
		cfg.TouchedHours = 24
	}
	return &Pipeline{
		agg: agg, scorer: scorer, locker: locker,
		lockKey: cfg.LockKey, touchedHours: cfg.TouchedHours, listingLimit: cfg.ListingLimit,
		timeout: cfg.Timeout, l: l,
	}
}

// Run executes one pass. When another process holds the lock the run is
// skipped without error.
func (p *Pipeline) Run(ctx context.Context) (PipelineResult, error) {
	var res PipelineResult
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	unlock, err := p.lock(ctx)
	if err != nil {
		return res, err
	}
	if unlock == nil {
		res.Skipped = true
		p.l.Info("pipeline run skipped, lock held elsewhere", applogger.Int64("lock_key", p.lockKey))
		return res, nil
	}
	defer unlock()

	res.Refresh, err = p.agg.RefreshTouched(ctx, p.touchedHours)
	if err != nil {
		return res, fmt.Errorf("pipeline: %w", err)
	}
	res.Score, err = p.scorer.ScoreListings(ctx, p.listingLimit)
	if err != nil {
		return res, fmt.Errorf("pipeline: %w", err)
	}
	return res, nil
}

// Refresh runs only the aggregation step under the lock. A held lock yields
// a result with Skipped set and no error.
func (p *Pipeline) Refresh(ctx context.Context, hours int) (models.RefreshResult, error) {
	unlock, err := p.lock(ctx)
	if err != nil {
		return models.RefreshResult{}, err
	}
	if unlock == nil {
		p.l.Info("refresh skipped, lock held elsewhere", applogger.Int64("lock_key", p.lockKey))
		return models.RefreshResult{Skipped: true}, nil
	}
	defer unlock()
	return p.agg.RefreshTouched(ctx, hours)
}

// Score runs only the scoring step. Scoring is append-only, so no lock is taken.
func (p *Pipeline) Score(ctx context.Context, limit int) (models.ScoreResult, error) {
	return p.scorer.ScoreListings(ctx, limit)
}

func (p *Pipeline) lock(ctx context.Context) (func(), error) {
	if p.locker == nil {
		return func() {}, nil
	}
	unlock, acquired, err := p.locker.TryLock(ctx, p.lockKey)
	if err != nil {
		return nil, fmt.Errorf("pipeline lock: %w", err)
	}
	if !acquired {
		return nil, nil
	}
	return unlock, nil
}
