package api

import (
	"context"
	"net/http"
	"time"

	"CardSignals/internal/domain/models"
	"CardSignals/internal/service/metrics"
	xhttp "CardSignals/pkg/http"
	xlogger "CardSignals/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SignalQuerier is the read side the signal routes need.
type SignalQuerier interface {
	Latest(ctx context.Context, req models.LatestSignalsRequest) ([]models.LatestSignal, error)
	Proof(ctx context.Context, id string) (*models.SignalProof, error)
	CardSnapshots(ctx context.Context, cardID string) ([]models.FeatureSnapshot, error)
	CardHistory(ctx context.Context, cardID string, limit int) ([]models.FeatureSnapshot, error)
}

// StreamServer upgrades a request to the live signal stream.
type StreamServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request) error
}

type SignalsEchoHandler struct {
	logger *xlogger.Logger
	query  SignalQuerier
	stream StreamServer
}

func NewSignalsEchoHandler(logger *xlogger.Logger, query SignalQuerier, stream StreamServer) *SignalsEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &SignalsEchoHandler{logger: logger, query: query, stream: stream}
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals/latest", h.Latest)
	g.GET("/signals/:id/proof", h.Proof)
	g.GET("/cards/:id/snapshots", h.Snapshots)
	g.GET("/cards/:id/history", h.History)
	if h.stream != nil {
		e.GET("/ws/signals", h.Stream)
	}
}

func (h *SignalsEchoHandler) Latest(c echo.Context) error {
	start := time.Now()
	req := &models.LatestSignalsRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.query.Latest(c.Request().Context(), *req)
	metrics.Observe("signals_latest", start, err != nil)
	if err != nil {
		h.logger.Error("latest signals failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=15")
	return xhttp.ListResponse(c, rows, len(rows))
}

func (h *SignalsEchoHandler) Proof(c echo.Context) error {
	start := time.Now()
	id := c.Param("id")
	proof, err := h.query.Proof(c.Request().Context(), id)
	metrics.Observe("signal_proof", start, err != nil)
	if err != nil {
		ae := appError(err)
		if ae.Status >= http.StatusInternalServerError {
			h.logger.Error("signal proof failed", xlogger.String("signal_id", id), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, ae)
	}
	return xhttp.SuccessResponse(c, proof)
}

func (h *SignalsEchoHandler) Snapshots(c echo.Context) error {
	start := time.Now()
	req := &models.CardPathRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snaps, err := h.query.CardSnapshots(c.Request().Context(), req.CardID)
	metrics.Observe("card_snapshots", start, err != nil)
	if err != nil {
		h.logger.Error("card snapshots failed", xlogger.String("card_id", req.CardID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.ListResponse(c, snaps, len(snaps))
}

func (h *SignalsEchoHandler) History(c echo.Context) error {
	start := time.Now()
	req := &models.CardPathRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snaps, err := h.query.CardHistory(c.Request().Context(), req.CardID, req.Limit)
	metrics.Observe("card_history", start, err != nil)
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.ListResponse(c, snaps, len(snaps))
}

// Stream hands the connection to the hub. The hub owns the response once
// the upgrade succeeds.
func (h *SignalsEchoHandler) Stream(c echo.Context) error {
	if err := h.stream.ServeWS(c.Response(), c.Request()); err != nil {
		h.logger.Debug("stream upgrade failed", xlogger.Error(err))
	}
	return nil
}
