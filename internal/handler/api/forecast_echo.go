package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"PriceCast/internal/domain/models"
	domrepo "PriceCast/internal/domain/repository"
	"PriceCast/pkg/cache"
	xhttp "PriceCast/pkg/http"
	xlogger "PriceCast/pkg/logger"
)

// SnapshotAssembler builds the published document on demand.
type SnapshotAssembler interface {
	Assemble(ctx context.Context, current models.TimeWindow) (*models.PublishedSnapshot, error)
}

// ForecastEchoHandler serves the forecast read API.
type ForecastEchoHandler struct {
	logger    *xlogger.Logger
	repo      domrepo.PriceRepository
	assembler SnapshotAssembler
	cache     cache.Service
	ttl       time.Duration
	backend   string
	current   func() models.TimeWindow
}

func NewForecastEchoHandler(
	logger *xlogger.Logger,
	repo domrepo.PriceRepository,
	assembler SnapshotAssembler,
	c cache.Service,
	ttl time.Duration,
	backend string,
	current func() models.TimeWindow,
) *ForecastEchoHandler {
	return &ForecastEchoHandler{
		logger:    logger,
		repo:      repo,
		assembler: assembler,
		cache:     c,
		ttl:       ttl,
		backend:   backend,
		current:   current,
	}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/snapshot", h.Snapshot)
	g.GET("/forecast", h.Forecast)
	g.GET("/performance", h.Performance)
	e.GET("/health", h.Health)
}

// Snapshot returns the same document the publisher exports, cached for ttl.
func (h *ForecastEchoHandler) Snapshot(c echo.Context) error {
	w := h.current()
	key := cache.GenerateKey("snapshot", w.ID())
	snap, err := cache.GetOrLoad(c.Request().Context(), h.cache, key, h.ttl,
		func(ctx context.Context) (*models.PublishedSnapshot, error) {
			return h.assembler.Assemble(ctx, w)
		})
	switch {
	case err != nil && snap == nil:
		h.logger.Error("snapshot assemble error", xlogger.String("window", w.ID()), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("snapshot unavailable").WithError(err))
	case err != nil:
		// Assembled but not cached; serve it anyway.
		h.logger.Warn("snapshot cache write failed", xlogger.String("key", key), xlogger.Error(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=60")
	return xhttp.SuccessResponse(c, snap)
}

func (h *ForecastEchoHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	w := h.current()
	if req.Week != "" {
		var err error
		if w, err = models.ParseWindowID(req.Week); err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("week", "week must be a Monday").
				WithParam("week", req.Week))
		}
	}

	recs, err := h.repo.ReadForecast(c.Request().Context(), w)
	if err != nil {
		h.logger.Error("forecast read error", xlogger.String("window", w.ID()), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("forecast unavailable").WithError(err))
	}
	if len(recs) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no forecast stored for week %s", w.ID()))
	}

	res := models.ForecastResponse{
		WindowID:  w.ID(),
		Start:     w.Start.Format(models.DateLayout),
		End:       w.End.Format(models.DateLayout),
		Forecasts: make([]models.PublishedForecast, 0, len(recs)),
	}
	for _, r := range recs {
		res.Forecasts = append(res.Forecasts, models.NewPublishedForecast(r))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Performance(c echo.Context) error {
	req := &models.PerformanceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	recs, err := h.repo.ReadComparisons(c.Request().Context(), req.Weeks)
	if err != nil {
		h.logger.Error("performance read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("performance unavailable").WithError(err))
	}
	out := make([]models.PublishedPerformance, 0, len(recs))
	for _, r := range recs {
		out = append(out, models.NewPublishedPerformance(r))
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *ForecastEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Health(ctx); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return xhttp.DataResponse(c, http.StatusServiceUnavailable,
			models.HealthResponse{Status: "unavailable", Backend: h.backend, Error: err.Error()})
	}
	return xhttp.SuccessResponse(c, models.HealthResponse{Status: "ok", Backend: h.backend})
}
