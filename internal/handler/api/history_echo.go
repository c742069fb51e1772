package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "MidgardPull/internal/domain/models"
	domrepo "MidgardPull/internal/domain/repository"
	"MidgardPull/internal/usecase"
	xhttp "MidgardPull/pkg/http"
	xlogger "MidgardPull/pkg/logger"
)

const healthTimeout = 2 * time.Second

// HistoryEchoHandler serves the persisted interval series.
type HistoryEchoHandler struct {
	logger *xlogger.Logger
	svc    *usecase.HistoryQueryService
}

func NewHistoryEchoHandler(logger *xlogger.Logger, svc *usecase.HistoryQueryService) *HistoryEchoHandler {
	return &HistoryEchoHandler{logger: logger, svc: svc}
}

func (h *HistoryEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/depth", h.series(domrepo.SeriesDepth))
	e.GET("/swap", h.series(domrepo.SeriesSwaps))
	e.GET("/earnings", h.series(domrepo.SeriesEarnings))
	e.GET("/rune", h.series(domrepo.SeriesRunePool))
	e.GET("/health", h.Health)
}

func (h *HistoryEchoHandler) series(s domrepo.Series) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := &models.HistoryRequest{}
		if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
			return xhttp.BadRequestResponse(c, verr)
		}

		data, err := h.svc.Query(c.Request().Context(), s, *req)
		if err != nil {
			h.logger.Error("history query error",
				xlogger.String("series", s.String()),
				xlogger.String("kind", domrepo.ErrorKind(err)),
				xlogger.Error(err),
			)
			return xhttp.AppErrorResponse(c, err)
		}
		return xhttp.SuccessResponse(c, data)
	}
}

// Health reports store reachability.
func (h *HistoryEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	if err := h.svc.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return xhttp.ErrorResponse(c, http.StatusServiceUnavailable, []*xhttp.AppError{
			xhttp.ServiceUnavailableError("ERR_STORE_UNAVAILABLE", "history store is unavailable"),
		})
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}
