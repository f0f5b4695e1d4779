package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pixelbay/mediahost/common/cache"
	"github.com/pixelbay/mediahost/common/config"
	"github.com/pixelbay/mediahost/common/db"
	"github.com/pixelbay/mediahost/common/logger"
	"github.com/pixelbay/mediahost/common/metrics"
	redisclient "github.com/pixelbay/mediahost/common/redis"
)

// Setup initializes all service components
// This is the main entry point for all services
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	// Apply options
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	// 3. Initialize database (if not skipped)
	if !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing database connection")
			components.DB.Close()
			return nil
		})

		// Run DB init hook if provided
		if options.dbInitHook != nil {
			components.Logger.Info("running database init hook")
			if err := options.dbInitHook(components.DB); err != nil {
				components.Shutdown(ctx) // Cleanup what we've initialized
				return nil, fmt.Errorf("database init hook failed: %w", err)
			}
		}
	}

	// 4. Initialize the counter store (if not skipped)
	if !options.skipRedis {
		components.Logger.Info("connecting to counter store",
			"addr", components.Config.RedisAddr(),
		)

		rdb := goredis.NewClient(&goredis.Options{
			Addr:     components.Config.RedisAddr(),
			Password: components.Config.Redis.Password,
			DB:       components.Config.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to counter store: %w", err)
		}

		components.Redis = redisclient.NewClient(rdb, components.Logger)
		components.addCleanup(func() error {
			components.Logger.Info("closing counter store connection")
			return rdb.Close()
		})
	}

	// 5. Initialize metrics (if not skipped)
	if !options.skipMetrics && components.Config.Telemetry.EnableMetrics {
		components.Logger.Info("initializing metrics",
			"port", components.Config.Telemetry.MetricsPort,
		)
		components.Metrics = metrics.New()

		mux := http.NewServeMux()
		mux.Handle("/metrics", components.Metrics.Handler())
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", components.Config.Telemetry.MetricsPort),
			Handler: mux,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				components.Logger.Warn("metrics server stopped", "error", err)
			}
		}()
		components.addCleanup(func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	// 6. Initialize cache (if not skipped)
	if !options.skipCache && components.Config.Cache.Enabled {
		components.Logger.Info("initializing cache",
			"max_entries", components.Config.Cache.MaxEntries,
			"shared", components.Redis != nil,
		)

		if components.Redis != nil {
			components.Cache = cache.NewRedisCache(
				components.Redis,
				"transform",
				components.Config.Cache.MaxEntries,
				components.Metrics,
			)
		} else {
			components.Cache = cache.NewMemoryCache(
				int(components.Config.Cache.MaxEntries),
				time.Minute,
				components.Metrics,
			)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing cache")
			return components.Cache.Close()
		})
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"cache", components.Cache != nil,
		"metrics", components.Metrics != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error
// Useful for services that can't recover from initialization failure
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
