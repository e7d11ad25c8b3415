package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"CardSignals/internal/domain/models"
	xhttp "CardSignals/pkg/http"
	applogger "CardSignals/pkg/logger"
	"CardSignals/pkg/queue"
)

const (
	JobFeaturizeTouched = "featurize_touched"
	JobScoreListings    = "score_listings"
)

// FeaturizeJob refreshes snapshots for recently touched cards.
type FeaturizeJob struct {
	p *Pipeline
	l *applogger.Logger
}

func NewFeaturizeJob(p *Pipeline, l *applogger.Logger) *FeaturizeJob {
	if l == nil {
		l = applogger.Nop()
	}
	return &FeaturizeJob{p: p, l: l}
}

func (j *FeaturizeJob) Name() string { return "featurize" }
func (j *FeaturizeJob) Type() string { return JobFeaturizeTouched }

func (j *FeaturizeJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.Decode[models.FeaturizeJobRequest](payload)
	if err != nil {
		return err
	}
	if err := xhttp.ApplyDefaults(ctx, &req); err != nil {
		return fmt.Errorf("featurize job: %w", err)
	}
	res, err := j.p.Refresh(ctx, req.SinceHours)
	if err != nil {
		return err
	}
	if res.Skipped {
		j.l.Warn("featurize job skipped, another refresh holds the lock",
			applogger.Int("since_hours", req.SinceHours))
		return nil
	}
	j.l.Info("featurize job done",
		applogger.Int("since_hours", req.SinceHours),
		applogger.Int("snapshots", res.SnapshotsWritten))
	return nil
}

// ScoreJob scores the newest listings.
type ScoreJob struct {
	p *Pipeline
	l *applogger.Logger
}

func NewScoreJob(p *Pipeline, l *applogger.Logger) *ScoreJob {
	if l == nil {
		l = applogger.Nop()
	}
	return &ScoreJob{p: p, l: l}
}

func (j *ScoreJob) Name() string { return "score" }
func (j *ScoreJob) Type() string { return JobScoreListings }

func (j *ScoreJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.Decode[models.ScoreJobRequest](payload)
	if err != nil {
		return err
	}
	if err := xhttp.ApplyDefaults(ctx, &req); err != nil {
		return fmt.Errorf("score job: %w", err)
	}
	res, err := j.p.Score(ctx, req.Limit)
	if err != nil {
		return err
	}
	j.l.Info("score job done", applogger.Int("limit", req.Limit), applogger.Int("created", res.Created))
	return nil
}

// JobOutcome is returned by the jobs endpoints. Either JobID is set (queued)
// or one of the result fields is (ran inline).
type JobOutcome struct {
	Queued  bool                  `json:"queued"`
	JobID   string                `json:"job_id,omitempty"`
	Refresh *models.RefreshResult `json:"refresh,omitempty"`
	Score   *models.ScoreResult   `json:"score,omitempty"`
}

// JobService enqueues batch work when a queue is configured and runs it
// inline otherwise.
type JobService struct {
	p   *Pipeline
	enq queue.Enqueuer
}

func NewJobService(p *Pipeline, enq queue.Enqueuer) *JobService {
	return &JobService{p: p, enq: enq}
}

func (s *JobService) Featurize(ctx context.Context, req models.FeaturizeJobRequest) (JobOutcome, error) {
	if s.enq != nil {
		id, err := s.enq.Enqueue(ctx, JobFeaturizeTouched, req)
		if err != nil {
			return JobOutcome{}, fmt.Errorf("enqueue featurize: %w", err)
		}
		return JobOutcome{Queued: true, JobID: id}, nil
	}
	res, err := s.p.Refresh(ctx, req.SinceHours)
	if err != nil {
		return JobOutcome{Refresh: &res}, err
	}
	return JobOutcome{Refresh: &res}, nil
}

func (s *JobService) Score(ctx context.Context, req models.ScoreJobRequest) (JobOutcome, error) {
	if s.enq != nil {
		id, err := s.enq.Enqueue(ctx, JobScoreListings, req)
		if err != nil {
			return JobOutcome{}, fmt.Errorf("enqueue score: %w", err)
		}
		return JobOutcome{Queued: true, JobID: id}, nil
	}
	res, err := s.p.Score(ctx, req.Limit)
	if err != nil {
		return JobOutcome{Score: &res}, err
	}
	return JobOutcome{Score: &res}, nil
}

var (
	_ queue.Job = (*FeaturizeJob)(nil)
	_ queue.Job = (*ScoreJob)(nil)
)
