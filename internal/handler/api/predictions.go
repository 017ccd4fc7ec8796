// Package api exposes the prediction pipeline over HTTP. The handlers
// are a thin facade: validation, a single pipeline or store call, and
// a uniform response envelope.
package api

import (
	"net/http"

	models "CoinSight/internal/domain/models"
	domrepo "CoinSight/internal/domain/repository"
	"CoinSight/internal/predict"
	xhttp "CoinSight/pkg/http"
	xlogger "CoinSight/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PredictionsHandler implements the Echo-based HTTP surface.
type PredictionsHandler struct {
	logger   *xlogger.Logger
	pipeline *predict.Pipeline
	store    domrepo.MarketStore
}

func NewPredictionsHandler(logger *xlogger.Logger, pipeline *predict.Pipeline, store domrepo.MarketStore) *PredictionsHandler {
	return &PredictionsHandler{logger: logger, pipeline: pipeline, store: store}
}

func (h *PredictionsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/v1")
	g.GET("/predictions", h.Predictions)
	g.POST("/predictions/generate", h.Generate)
	g.GET("/regime", h.Regime)
}

func (h *PredictionsHandler) Predictions(c echo.Context) error {
	req := &models.PredictionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	preds, err := h.pipeline.GetPredictions(c.Request().Context(), req.Refresh)
	if err != nil {
		h.logger.Error("predictions read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if req.Limit > 0 && len(preds) > req.Limit {
		preds = preds[:req.Limit]
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, preds)
}

// Generate triggers a cycle. A request arriving mid-cycle is accepted
// without starting a second one.
func (h *PredictionsHandler) Generate(c echo.Context) error {
	if h.pipeline.State() == predict.StateGenerating {
		return xhttp.AcceptedResponse(c, map[string]string{"state": predict.StateGenerating})
	}

	preds, err := h.pipeline.Generate(c.Request().Context())
	if err != nil {
		h.logger.Error("generation error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, preds)
}

func (h *PredictionsHandler) Regime(c echo.Context) error {
	regime, err := h.pipeline.LatestRegime(c.Request().Context())
	if err != nil {
		h.logger.Error("regime read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if regime == nil {
		return xhttp.NotFoundResponse(c, "no regime classified yet")
	}
	return xhttp.SuccessResponse(c, regime)
}

func (h *PredictionsHandler) Health(c echo.Context) error {
	if err := h.store.Health(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", xlogger.Error(err))
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, "store unavailable")
	}
	return xhttp.SuccessResponse(c, map[string]string{
		"status": "ok",
		"state":  h.pipeline.State(),
	})
}
