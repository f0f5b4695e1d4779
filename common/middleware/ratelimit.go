// Package middleware provides the echo admission middleware: per-subject
// token-bucket rate limiting, IP-keyed public rate limiting and quota
// enforcement. The rate limit paths fail open on store errors; the quota
// path fails closed because it guards billable resources.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pixelbay/mediahost/common/metrics"
	"github.com/pixelbay/mediahost/common/models"
	"github.com/pixelbay/mediahost/common/ratelimit"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// SubjectContextKey is where the auth layer stores the resolved subject
const SubjectContextKey = "subject"

// SubjectFrom extracts the authenticated subject set by the auth layer
func SubjectFrom(c echo.Context) (*models.Subject, bool) {
	sub, ok := c.Get(SubjectContextKey).(*models.Subject)
	return sub, ok && sub != nil
}

// RateLimit enforces the subject's per-minute/hour/day token buckets. The
// decision call is bounded by checkTimeout; an unavailable store admits
// the request with a warning rather than turning an outage into a
// client-visible failure.
func RateLimit(limiter *ratelimit.Limiter, logger Logger, m *metrics.Metrics, checkTimeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sub, ok := SubjectFrom(c)
			if !ok {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
			defer cancel()

			result, err := limiter.Check(ctx, sub.ID, sub.Limits.RateLimits, 1)
			if err != nil {
				logger.Warn("rate limiter unavailable, admitting request",
					"subject_id", sub.ID, "error", err)
				m.RecordAdmission("error_open", "")
				return next(c)
			}

			setRateLimitHeaders(c, result)

			if !result.Allowed {
				m.RecordAdmission("denied", string(result.Window))
				c.Response().Header().Set("Retry-After",
					fmt.Sprintf("%d", int64(result.RetryAfter.Seconds())))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":       "rate_limit_exceeded",
					"window":      result.Window,
					"limit":       result.Limit,
					"retry_after": int64(result.RetryAfter.Seconds()),
				})
			}

			m.RecordAdmission("allowed", string(result.Window))
			return next(c)
		}
	}
}

// PublicRateLimit enforces IP-keyed sliding windows on unauthenticated
// endpoints. Fails open on store errors.
func PublicRateLimit(limiter *ratelimit.Limiter, logger Logger, m *metrics.Metrics, perMinute, perHour int64, checkTimeout time.Duration) echo.MiddlewareFunc {
	windows := []struct {
		limit  int64
		window time.Duration
	}{
		{perMinute, time.Minute},
		{perHour, time.Hour},
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
			defer cancel()

			for _, w := range windows {
				if w.limit <= 0 {
					continue
				}
				allowed, _, err := limiter.AllowPublic(ctx, ip, w.limit, w.window)
				if err != nil {
					logger.Warn("public rate limiter unavailable, admitting request",
						"client_ip", ip, "error", err)
					m.RecordAdmission("error_open", "public")
					return next(c)
				}
				if !allowed {
					m.RecordAdmission("denied", "public")
					c.Response().Header().Set("Retry-After", "60")
					return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
						"error": "rate_limit_exceeded",
					})
				}
			}

			m.RecordAdmission("allowed", "public")
			return next(c)
		}
	}
}

func setRateLimitHeaders(c echo.Context, result *ratelimit.Result) {
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
	h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))
}
