package bootstrap

import (
	"context"
	"fmt"

	"github.com/pixelbay/mediahost/common/cache"
	"github.com/pixelbay/mediahost/common/config"
	"github.com/pixelbay/mediahost/common/db"
	"github.com/pixelbay/mediahost/common/logger"
	"github.com/pixelbay/mediahost/common/metrics"
	redisclient "github.com/pixelbay/mediahost/common/redis"
)

// Components holds all initialized service dependencies
type Components struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.DB
	Redis   *redisclient.Client
	Cache   cache.Cache
	Metrics *metrics.Metrics

	// Internal
	cleanupFuncs []func() error
}

// Shutdown performs graceful shutdown of all components
// Should be called with defer after Setup()
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errors []error

	// Run cleanup functions in reverse order (LIFO)
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errors = append(errors, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("shutdown errors: %v", errors)
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// Health checks health of all components
func (c *Components) Health(ctx context.Context) error {
	if c.DB != nil {
		if err := c.DB.Health(ctx); err != nil {
			return fmt.Errorf("database unhealthy: %w", err)
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Health(ctx); err != nil {
			return fmt.Errorf("counter store unhealthy: %w", err)
		}
	}

	return nil
}

// addCleanup registers a cleanup function
func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
