package api

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
	"SignalFusion/internal/usecase"
	xhttp "SignalFusion/pkg/http"
	xlogger "SignalFusion/pkg/logger"
)

// DecisionService is the slice of the decision engine the API needs.
type DecisionService interface {
	Decide(ctx context.Context, pair, timeframe string, bars int) (models.FusedDecision, error)
	Latest(pair string) (models.FusedDecision, bool)
	CurrentThresholds(ctx context.Context) (models.AdaptiveThresholds, bool)
	Reliability(ctx context.Context, moduleID string) (map[string]models.ModuleReliability, error)
}

type OutcomeRecorder interface {
	RecordBatch(ctx context.Context, outcomes []models.TradeOutcome) ([]models.ModuleReliability, error)
}

// DecisionsHandler serves the decision, threshold, reliability and outcome endpoints.
type DecisionsHandler struct {
	logger   *xlogger.Logger
	engine   DecisionService
	outcomes OutcomeRecorder
	candles  *usecase.CandlesUseCase
	guard    echo.MiddlewareFunc
}

// NewDecisionsHandler wires the routes. guard, when non-nil, protects the
// endpoints that run cycles or mutate reliability.
func NewDecisionsHandler(logger *xlogger.Logger, engine DecisionService, outcomes OutcomeRecorder, candles *usecase.CandlesUseCase, guard echo.MiddlewareFunc) *DecisionsHandler {
	return &DecisionsHandler{logger: logger, engine: engine, outcomes: outcomes, candles: candles, guard: guard}
}

func (h *DecisionsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	var write []echo.MiddlewareFunc
	if h.guard != nil {
		write = append(write, h.guard)
	}
	g.POST("/decisions", h.Decide, write...)
	g.GET("/decisions/latest", h.Latest)
	g.GET("/decisions/explain", h.Explain)
	g.GET("/thresholds", h.Thresholds)
	g.GET("/reliability", h.Reliability)
	g.POST("/outcomes", h.RecordOutcomes, write...)
	if h.candles != nil {
		g.GET("/candles", h.Candles)
	}
}

func (h *DecisionsHandler) Decide(c echo.Context) error {
	req := &models.DecisionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	d, err := h.engine.Decide(c.Request().Context(), req.Pair, req.Timeframe, req.Bars)
	if err != nil {
		h.logger.Error("decide failed", xlogger.String("pair", req.Pair), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("market data unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, d)
}

func (h *DecisionsHandler) Latest(c echo.Context) error {
	pair := c.QueryParam("pair")
	if pair == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("pair is required"))
	}
	d, ok := h.engine.Latest(pair)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no decision for %s", pair))
	}
	return xhttp.SuccessResponse(c, d)
}

// ExplainResponse is the human-facing part of a decision.
type ExplainResponse struct {
	DecisionID          string                               `json:"decision_id"`
	Pair                string                               `json:"pair"`
	Direction           models.Direction                     `json:"direction"`
	Accepted            bool                                 `json:"accepted"`
	Reasoning           string                               `json:"reasoning"`
	Rejection           *models.RejectionInfo                `json:"rejection,omitempty"`
	Warnings            []string                             `json:"warnings"`
	ModuleContributions map[string]models.ModuleContribution `json:"module_contributions"`
	Diagnostics         *models.Diagnostics                  `json:"diagnostics,omitempty"`
}

func (h *DecisionsHandler) Explain(c echo.Context) error {
	pair := c.QueryParam("pair")
	if pair == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("pair is required"))
	}
	d, ok := h.engine.Latest(pair)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no decision for %s", pair))
	}
	return xhttp.SuccessResponse(c, ExplainResponse{
		DecisionID:          d.ID,
		Pair:                d.Pair,
		Direction:           d.Direction,
		Accepted:            d.Accepted(),
		Reasoning:           d.Reasoning,
		Rejection:           d.Rejection,
		Warnings:            d.Warnings,
		ModuleContributions: d.ModuleContributions,
		Diagnostics:         d.Diagnostics,
	})
}

type thresholdsResponse struct {
	models.AdaptiveThresholds
	Degraded bool `json:"degraded"`
}

func (h *DecisionsHandler) Thresholds(c echo.Context) error {
	t, degraded := h.engine.CurrentThresholds(c.Request().Context())
	return xhttp.SuccessResponse(c, thresholdsResponse{AdaptiveThresholds: t, Degraded: degraded})
}

func (h *DecisionsHandler) Reliability(c echo.Context) error {
	req := &models.ReliabilityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rs, err := h.engine.Reliability(c.Request().Context(), req.ModuleID)
	switch {
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no reliability for module %s", req.ModuleID))
	case err != nil:
		h.logger.Error("reliability query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("reliability store unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, rs, int64(len(rs)))
}

func (h *DecisionsHandler) RecordOutcomes(c echo.Context) error {
	req := &models.OutcomeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	updated, err := h.outcomes.RecordBatch(c.Request().Context(), req.Outcomes)
	if err != nil {
		h.logger.Error("record outcomes failed",
			xlogger.Int("outcomes", len(req.Outcomes)),
			xlogger.Int("applied", len(updated)),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("reliability update failed").
			WithParam("applied", len(updated)).
			WithParam("total", len(req.Outcomes)).
			WithError(err))
	}
	return xhttp.AcceptedResponse(c, updated)
}

func (h *DecisionsHandler) Candles(c echo.Context) error {
	pair := c.QueryParam("pair")
	n := xhttp.QueryInt(c, "bars", 200, 1, 5000)
	since, perr := xhttp.QueryTime(c, "since", time.Time{})
	if perr != nil {
		return xhttp.AppErrorResponse(c, perr)
	}
	res, err := h.candles.Latest(c.Request().Context(), pair, c.QueryParam("timeframe"), n, since)
	switch {
	case errors.Is(err, usecase.ErrInvalidRequest):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	case err != nil:
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("market data unavailable").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}
