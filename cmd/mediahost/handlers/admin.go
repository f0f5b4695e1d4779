package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pixelbay/mediahost/cmd/mediahost/service"
	"github.com/pixelbay/mediahost/common/logger"
	"github.com/pixelbay/mediahost/common/repository"
)

// UsageHistory serves the durable per-day usage rollups
type UsageHistory interface {
	History(ctx context.Context, subjectID string, days int) ([]repository.DayUsage, error)
}

// AdminHandler exposes operator endpoints: limit patches, counter resets
// and usage reporting. Routes mounting this handler sit behind the admin
// auth layer.
type AdminHandler struct {
	admin  *service.AdminService
	limits *service.LimitsService
	usage  UsageHistory
	log    *logger.Logger
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(admin *service.AdminService, limits *service.LimitsService, usage UsageHistory, log *logger.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, limits: limits, usage: usage, log: log}
}

// GetLimits returns a subject's effective limits
// GET /api/v1/admin/subjects/:id/limits
func (h *AdminHandler) GetLimits(c echo.Context) error {
	limits, err := h.limits.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorBody("subject not found"))
	}
	return c.JSON(http.StatusOK, limits)
}

// PatchLimits applies an RFC 7386 merge patch to a subject's limits
// PATCH /api/v1/admin/subjects/:id/limits
func (h *AdminHandler) PatchLimits(c echo.Context) error {
	patch, err := io.ReadAll(c.Request().Body)
	if err != nil || len(patch) == 0 {
		return c.JSON(http.StatusBadRequest, errorBody("patch body is required"))
	}

	limits, err := h.limits.ApplyPatch(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		h.log.Warn("limits patch rejected", "subject_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusUnprocessableEntity, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, limits)
}

// GetUsage returns a subject's recent per-day usage rollups, newest first
// GET /api/v1/admin/subjects/:id/usage
func (h *AdminHandler) GetUsage(c echo.Context) error {
	days := 30
	if raw := c.QueryParam("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			return c.JSON(http.StatusBadRequest, errorBody("days must be between 1 and 365"))
		}
		days = parsed
	}

	history, err := h.usage.History(c.Request().Context(), c.Param("id"), days)
	if err != nil {
		h.log.Error("usage history lookup failed", "subject_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("usage history lookup failed"))
	}
	if history == nil {
		history = []repository.DayUsage{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"subject_id": c.Param("id"),
		"usage":      history,
	})
}

// ResetRateLimit clears one of a subject's token buckets
// POST /api/v1/admin/subjects/:id/rate-limits/:window/reset
func (h *AdminHandler) ResetRateLimit(c echo.Context) error {
	if err := h.admin.ResetRateLimit(c.Request().Context(), c.Param("id"), c.Param("window")); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}

// ResetUsageCounter clears one of a subject's usage counters
// POST /api/v1/admin/subjects/:id/usage/:kind/reset
func (h *AdminHandler) ResetUsageCounter(c echo.Context) error {
	if err := h.admin.ResetUsageCounter(c.Request().Context(), c.Param("id"), c.Param("kind")); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}
