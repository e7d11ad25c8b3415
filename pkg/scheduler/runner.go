package scheduler

import (
	"context"
	"fmt"
	"time"

	applogger "CardSignals/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Runner runs named jobs on seconds-enabled cron specs. A job still running
// when its next tick fires is skipped, not stacked.
type Runner struct {
	cron    *cron.Cron
	l       *applogger.Logger
	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(l *applogger.Logger) *Runner {
	if l == nil {
		l = applogger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger), cron.Recover(cron.DiscardLogger)),
		),
		l:       l,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Add schedules job under name. Every run gets a context cancelled by Stop.
func (r *Runner) Add(name, spec string, job func(context.Context) error) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(r.baseCtx); err != nil {
			r.l.Error("scheduled job failed",
				applogger.String("job", name),
				applogger.Duration("duration_ms", time.Since(start)),
				applogger.Error(err))
			return
		}
		r.l.Info("scheduled job done",
			applogger.String("job", name),
			applogger.Duration("duration_ms", time.Since(start)))
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	return id, nil
}

// Entries reports the number of scheduled jobs.
func (r *Runner) Entries() int { return len(r.cron.Entries()) }

func (r *Runner) Start() {
	r.l.Info("cron started", applogger.Int("jobs", r.Entries()))
	r.cron.Start()
}

// Stop cancels running jobs and waits until they return or ctx expires.
func (r *Runner) Stop(ctx context.Context) error {
	r.cancel()
	done := r.cron.Stop()
	select {
	case <-done.Done():
		r.l.Info("cron stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
