package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pixelbay/mediahost/cmd/mediahost/container"
	"github.com/pixelbay/mediahost/cmd/mediahost/routes"
	"github.com/pixelbay/mediahost/common/bootstrap"
	commonmw "github.com/pixelbay/mediahost/common/middleware"
	"github.com/pixelbay/mediahost/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (DB, counter store, cache, metrics)
	components, err := bootstrap.Setup(ctx, "mediahost")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap mediahost: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(ctx, components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Initialize Echo server
	e := setupEcho()

	// Setup middleware
	setupMiddleware(e, serviceContainer)

	// Setup health check
	setupHealthCheck(e, components)

	// Register all routes
	registerRoutes(e, serviceContainer)

	// Start server; the job pool drains after the listener stops
	srv := server.New("mediahost", components.Config.Service.Port, e, components.Logger,
		func(drainCtx context.Context) error {
			poolCtx, cancel := context.WithTimeout(drainCtx, 25*time.Second)
			defer cancel()
			return serviceContainer.Pool.Shutdown(poolCtx)
		})
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, c *container.Container) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())

	// IP-keyed sliding windows guard everything before auth runs; health
	// probes are exempt so load balancers never get throttled out
	publicRL := commonmw.PublicRateLimit(
		c.Limiter,
		c.Components.Logger,
		c.Components.Metrics,
		c.Components.Config.RateLimit.PublicPerMinute,
		c.Components.Config.RateLimit.PublicPerHour,
		c.Components.Config.RateLimit.CheckTimeout,
	)
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		limited := publicRL(next)
		return func(c echo.Context) error {
			if c.Path() == "/health" {
				return next(c)
			}
			return limited(c)
		}
	})
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "mediahost",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterImageRoutes(e, serviceContainer)
	routes.RegisterJobRoutes(e, serviceContainer)
	routes.RegisterQuotaRoutes(e, serviceContainer)
	routes.RegisterAdminRoutes(e, serviceContainer)
}
