package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/pixelbay/mediahost/cmd/mediahost/container"
	"github.com/pixelbay/mediahost/cmd/mediahost/handlers"
	mhmiddleware "github.com/pixelbay/mediahost/cmd/mediahost/middleware"
	commonmw "github.com/pixelbay/mediahost/common/middleware"
)

// RegisterImageRoutes registers upload and image lifecycle routes. Every
// route is authenticated and rate limited; the upload route additionally
// passes the quota gate before the handler runs.
func RegisterImageRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewImageHandler(c.UploadService, c.ImageRepo, c.Components.Cache,
		c.Components.Config.Cache.DefaultTTL, c.Components.Logger)

	auth := mhmiddleware.APIKeyAuth(c.SubjectRepo, c.Components.Logger)
	rateLimit := commonmw.RateLimit(c.Limiter, c.Components.Logger, c.Components.Metrics,
		c.Components.Config.RateLimit.CheckTimeout)
	quotaGate := commonmw.Quota(c.Engine, c.Components.Logger, c.Components.Metrics)

	images := e.Group("/api/v1/images", auth, rateLimit)
	{
		images.POST("", h.Submit, quotaGate) // POST   /api/v1/images
		images.GET("/:id", h.Get)            // GET    /api/v1/images/:id
		images.DELETE("/:id", h.Delete)      // DELETE /api/v1/images/:id
	}
}

// RegisterJobRoutes registers processing job status routes
func RegisterJobRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewJobHandler(c.Pool, c.Components.Logger)

	auth := mhmiddleware.APIKeyAuth(c.SubjectRepo, c.Components.Logger)
	rateLimit := commonmw.RateLimit(c.Limiter, c.Components.Logger, c.Components.Metrics,
		c.Components.Config.RateLimit.CheckTimeout)

	jobs := e.Group("/api/v1/jobs", auth, rateLimit)
	{
		jobs.GET("/queue", h.Queue) // GET /api/v1/jobs/queue
		jobs.GET("/:id", h.Get)     // GET /api/v1/jobs/:id
	}
}

// RegisterQuotaRoutes registers the quota status route
func RegisterQuotaRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewQuotaHandler(c.Engine, c.Components.Logger)

	auth := mhmiddleware.APIKeyAuth(c.SubjectRepo, c.Components.Logger)

	e.GET("/api/v1/quota", h.Status, auth) // GET /api/v1/quota
}

// RegisterAdminRoutes registers operator routes: limit patches, counter
// resets and usage reporting
func RegisterAdminRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewAdminHandler(c.AdminService, c.LimitsService, c.UsageRepo, c.Components.Logger)

	auth := mhmiddleware.APIKeyAuth(c.SubjectRepo, c.Components.Logger)

	admin := e.Group("/api/v1/admin/subjects/:id", auth)
	{
		admin.GET("/limits", h.GetLimits)                            // GET   /api/v1/admin/subjects/:id/limits
		admin.PATCH("/limits", h.PatchLimits)                        // PATCH /api/v1/admin/subjects/:id/limits
		admin.GET("/usage", h.GetUsage)                              // GET   /api/v1/admin/subjects/:id/usage?days=30
		admin.POST("/rate-limits/:window/reset", h.ResetRateLimit)   // POST  /api/v1/admin/subjects/:id/rate-limits/minute/reset
		admin.POST("/usage/:kind/reset", h.ResetUsageCounter)        // POST  /api/v1/admin/subjects/:id/usage/daily_uploads/reset
	}
}
