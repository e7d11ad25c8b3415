package server

import (
	"context"
	"errors"
	"time"

	"CardSignals/internal/domain/models"
	"CardSignals/internal/domain/repository"
	"CardSignals/internal/usecase"
	"CardSignals/pkg/config"
	xhttp "CardSignals/pkg/http"
	pkgkafka "CardSignals/pkg/kafka"
	applogger "CardSignals/pkg/logger"
	"CardSignals/pkg/queue"
	"CardSignals/pkg/scheduler"
)

// Deps are the assembled components. Consumer and Queue are nil when disabled.
type Deps struct {
	Config    *config.Config
	Logger    *applogger.Logger
	Store     repository.Store
	Pipeline  *usecase.Pipeline
	HTTP      *xhttp.Server
	Consumer  *pkgkafka.Consumer
	Queue     *queue.RedisQueue
	Scheduler *scheduler.Runner
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	l         *applogger.Logger
	store     repository.Store
	pipeline  *usecase.Pipeline
	http      *xhttp.Server
	consumer  *pkgkafka.Consumer
	queue     *queue.RedisQueue
	scheduler *scheduler.Runner
}

func New(d Deps) *App {
	l := d.Logger
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:       d.Config,
		l:         l,
		store:     d.Store,
		pipeline:  d.Pipeline,
		http:      d.HTTP,
		consumer:  d.Consumer,
		queue:     d.Queue,
		scheduler: d.Scheduler,
	}
}

// Serve starts every background component and the HTTP server, then blocks
// until ctx is cancelled or the listener fails.
func (a *App) Serve(ctx context.Context) error {
	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return err
		}
	}
	if a.queue != nil {
		if err := a.queue.Start(ctx); err != nil {
			return err
		}
	}
	if a.scheduler != nil {
		a.scheduler.Start()
	}
	if err := a.http.Start(); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case runErr = <-a.http.Err():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
	defer cancel()
	return errors.Join(runErr, a.shutdown(shutdownCtx))
}

// shutdown stops intake first (HTTP, consumer), then the background workers.
func (a *App) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.http.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.l.Warn("scheduler stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.l.Warn("job queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg != nil && a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}

// Featurize refreshes snapshots for cards with sales in the last hours.
func (a *App) Featurize(ctx context.Context, hours int) (models.RefreshResult, error) {
	return a.pipeline.Refresh(ctx, hours)
}

// Score scores up to limit recent listings.
func (a *App) Score(ctx context.Context, limit int) (models.ScoreResult, error) {
	return a.pipeline.Score(ctx, limit)
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// Migrate applies the primary store schema. The in-memory store needs none.
func (a *App) Migrate(ctx context.Context) error {
	m, ok := a.store.(migrator)
	if !ok {
		a.l.Info("store has no schema to migrate")
		return nil
	}
	return m.Migrate(ctx)
}
