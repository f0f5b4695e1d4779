package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pixelbay/mediahost/cmd/mediahost/middleware"
	"github.com/pixelbay/mediahost/common/logger"
	"github.com/pixelbay/mediahost/common/quota"
)

// QuotaHandler reports a subject's position against its limits
type QuotaHandler struct {
	engine *quota.Engine
	log    *logger.Logger
}

// NewQuotaHandler creates a quota handler
func NewQuotaHandler(engine *quota.Engine, log *logger.Logger) *QuotaHandler {
	return &QuotaHandler{engine: engine, log: log}
}

// Status returns used/limit/percentage per quota dimension
// GET /api/v1/quota
func (h *QuotaHandler) Status(c echo.Context) error {
	sub, ok := middleware.GetSubject(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("authentication required"))
	}

	status, err := h.engine.QuotaStatus(c.Request().Context(), sub.ID, sub.OwnerID, sub.Limits)
	if err != nil {
		h.log.Error("quota status failed", "subject_id", sub.ID, "error", err)
		return c.JSON(http.StatusServiceUnavailable, errorBody("quota status unavailable"))
	}

	return c.JSON(http.StatusOK, status)
}
