package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pixelbay/mediahost/common/metrics"
	"github.com/pixelbay/mediahost/common/quota"
)

// Quota runs the speculative quota check before upload handlers. The
// requested size comes from Content-Length; a missing length checks
// against zero bytes and the handler re-checks once the true size is
// known. Unlike the rate limiter this fails closed: if the authoritative
// stores cannot answer, admitting the upload could breach paid limits.
func Quota(engine *quota.Engine, logger Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sub, ok := SubjectFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			requested := c.Request().ContentLength
			if requested < 0 {
				requested = 0
			}

			result, err := engine.CheckQuota(c.Request().Context(), sub.ID, sub.OwnerID, requested, sub.Limits)
			if err != nil {
				logger.Error("quota check unavailable, rejecting request",
					"subject_id", sub.ID, "error", err)
				return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
					"error": "quota_check_unavailable",
				})
			}

			if !result.Allowed {
				for _, v := range result.Violations {
					m.RecordQuotaViolation(string(v.Kind))
				}
				return c.JSON(quotaDenyStatus(result), map[string]interface{}{
					"error":      "quota_exceeded",
					"violations": result.Violations,
					"usage":      result.Usage,
				})
			}

			return next(c)
		}
	}
}

// quotaDenyStatus picks the response code: an oversized payload alone is
// a 413, every other combination is a 403
func quotaDenyStatus(result *quota.CheckResult) int {
	if len(result.Violations) == 1 && result.Violations[0].Kind == quota.FileSizeExceeded {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusForbidden
}
