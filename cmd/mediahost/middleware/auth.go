package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pixelbay/mediahost/common/logger"
	commonmw "github.com/pixelbay/mediahost/common/middleware"
	"github.com/pixelbay/mediahost/common/models"
	"github.com/pixelbay/mediahost/common/repository"
)

// APIKeyAuth resolves the X-API-Key header to a subject with typed,
// validated limits and attaches it for the admission middleware. Full
// credential verification lives in the auth service upstream; this layer
// only needs the subject identity and its limits.
func APIKeyAuth(subjects *repository.SubjectRepository, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey := c.Request().Header.Get("X-API-Key")
			if apiKey == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "X-API-Key header is required",
				})
			}

			sub, err := subjects.Resolve(c.Request().Context(), apiKey)
			if err != nil {
				if errors.Is(err, repository.ErrSubjectNotFound) {
					return c.JSON(http.StatusUnauthorized, map[string]interface{}{
						"error": "unknown or revoked API key",
					})
				}
				log.Error("subject resolution failed", "error", err)
				return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
					"error": "authentication unavailable",
				})
			}

			c.Set(commonmw.SubjectContextKey, sub)
			return next(c)
		}
	}
}

// GetSubject retrieves the resolved subject from the request context
func GetSubject(c echo.Context) (*models.Subject, bool) {
	return commonmw.SubjectFrom(c)
}
