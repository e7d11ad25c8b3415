package api

import (
	"context"

	"CardSignals/internal/domain/models"
	"CardSignals/internal/usecase"
	xhttp "CardSignals/pkg/http"
	xlogger "CardSignals/pkg/logger"

	"github.com/labstack/echo/v4"
)

type JobRunner interface {
	Featurize(ctx context.Context, req models.FeaturizeJobRequest) (usecase.JobOutcome, error)
	Score(ctx context.Context, req models.ScoreJobRequest) (usecase.JobOutcome, error)
}

// JobsEchoHandler triggers batch work on demand. Queued jobs answer 202,
// inline runs answer 200 with their counts.
type JobsEchoHandler struct {
	logger *xlogger.Logger
	jobs   JobRunner
}

func NewJobsEchoHandler(logger *xlogger.Logger, jobs JobRunner) *JobsEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &JobsEchoHandler{logger: logger, jobs: jobs}
}

func (h *JobsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/jobs")
	g.POST("/featurize", h.Featurize)
	g.POST("/score", h.Score)
}

func (h *JobsEchoHandler) Featurize(c echo.Context) error {
	req := &models.FeaturizeJobRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out, err := h.jobs.Featurize(c.Request().Context(), *req)
	return h.respond(c, "featurize", out, err)
}

func (h *JobsEchoHandler) Score(c echo.Context) error {
	req := &models.ScoreJobRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out, err := h.jobs.Score(c.Request().Context(), *req)
	return h.respond(c, "score", out, err)
}

func (h *JobsEchoHandler) respond(c echo.Context, job string, out usecase.JobOutcome, err error) error {
	if err != nil {
		h.logger.Error("job request failed", xlogger.String("job", job), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	if out.Queued {
		return xhttp.AcceptedResponse(c, out)
	}
	return xhttp.SuccessResponse(c, out)
}
