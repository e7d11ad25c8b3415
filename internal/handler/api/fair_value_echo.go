package api

import (
	"context"
	"strconv"
	"time"

	"CardSignals/internal/domain/models"
	"CardSignals/internal/service/metrics"
	xhttp "CardSignals/pkg/http"
	xlogger "CardSignals/pkg/logger"

	"github.com/labstack/echo/v4"
)

type FairValuer interface {
	Quote(ctx context.Context, req models.FairValueRequest) (*models.FairValueQuote, error)
}

type FairValueEchoHandler struct {
	logger  *xlogger.Logger
	fv      FairValuer
	limiter echo.MiddlewareFunc
}

// NewFairValueEchoHandler builds the /api/fv handler. limiter may be nil.
func NewFairValueEchoHandler(logger *xlogger.Logger, fv FairValuer, limiter echo.MiddlewareFunc) *FairValueEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &FairValueEchoHandler{logger: logger, fv: fv, limiter: limiter}
}

func (h *FairValueEchoHandler) RegisterRoutes(e *echo.Echo) {
	var mws []echo.MiddlewareFunc
	if h.limiter != nil {
		mws = append(mws, h.limiter)
	}
	e.GET("/api/fv", h.FairValue, mws...)
}

func (h *FairValueEchoHandler) FairValue(c echo.Context) error {
	start := time.Now()
	req := &models.FairValueRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	q, err := h.fv.Quote(c.Request().Context(), *req)
	metrics.Observe("fair_value", start, err != nil)
	if err != nil {
		ae := appError(err)
		if ae.Status >= 500 {
			h.logger.Error("fair value failed", xlogger.String("name", req.Name), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, ae)
	}
	metrics.FairValueQualified.WithLabelValues(strconv.FormatBool(q.Qualified)).Inc()
	return xhttp.SuccessResponse(c, q)
}
