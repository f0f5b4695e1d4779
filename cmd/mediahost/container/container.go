package container

import (
	"context"
	"fmt"

	"github.com/pixelbay/mediahost/cmd/mediahost/service"
	"github.com/pixelbay/mediahost/common/bootstrap"
	"github.com/pixelbay/mediahost/common/jobs"
	"github.com/pixelbay/mediahost/common/quota"
	"github.com/pixelbay/mediahost/common/ratelimit"
	"github.com/pixelbay/mediahost/common/repository"
	"github.com/pixelbay/mediahost/common/variants"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	Components *bootstrap.Components

	// Repositories
	ImageRepo   *repository.ImageRepository
	SubjectRepo *repository.SubjectRepository
	UsageRepo   *repository.UsageRepository

	// Admission
	Limiter *ratelimit.Limiter
	Engine  *quota.Engine

	// Processing
	Generator *variants.Generator
	Pool      *jobs.Pool

	// Services
	UploadService *service.UploadService
	LimitsService *service.LimitsService
	AdminService  *service.AdminService
}

// NewContainer initializes all services and repositories once
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	if components.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if components.Redis == nil {
		return nil, fmt.Errorf("counter store is required")
	}

	cfg := components.Config

	// Repositories
	imageRepo := repository.NewImageRepository(components.DB)
	subjectRepo := repository.NewSubjectRepository(components.DB)
	usageRepo := repository.NewUsageRepository(components.DB)

	// Admission: token buckets on the shared counter store, quota checks
	// over fast counters plus the authoritative image records
	store := ratelimit.NewRedisStore(components.Redis.GetUnderlying())
	limiter := ratelimit.NewLimiter(store, components.Logger, cfg.RateLimit.BucketTTL)

	engine := quota.NewEngine(
		components.Redis,
		imageRepo,
		quota.Periods{
			Daily:   cfg.Quota.DailyTTL,
			Monthly: cfg.Quota.MonthlyTTL,
			Default: cfg.Quota.DefaultTTL,
		},
		components.Logger,
	)

	// Processing pipeline
	generator := variants.NewGenerator(
		variants.NewPassthroughTransformer(),
		cfg.Processing.OutputDir,
		variants.QualityDefaults{
			WebP: cfg.Processing.WebPQuality,
			AVIF: cfg.Processing.AVIFQuality,
			JPEG: cfg.Processing.JPEGQuality,
		},
	)
	pool := jobs.NewPool(
		jobs.Config{
			Workers:        cfg.Processing.MaxWorkers,
			QueueSize:      cfg.Processing.QueueSize,
			MaxRetries:     cfg.Processing.MaxRetries,
			BaseRetryDelay: cfg.Processing.BaseRetryDelay,
		},
		generator,
		imageRepo,
		components.Logger,
		components.Metrics,
	)
	pool.Start(ctx)

	// Services
	uploadService := service.NewUploadService(
		engine,
		pool,
		imageRepo,
		usageRepo,
		cfg.Processing,
		components.Logger,
	)
	limitsService := service.NewLimitsService(subjectRepo, components.Logger)
	adminService := service.NewAdminService(limiter, engine, components.Logger)

	return &Container{
		Components:    components,
		ImageRepo:     imageRepo,
		SubjectRepo:   subjectRepo,
		UsageRepo:     usageRepo,
		Limiter:       limiter,
		Engine:        engine,
		Generator:     generator,
		Pool:          pool,
		UploadService: uploadService,
		LimitsService: limitsService,
		AdminService:  adminService,
	}, nil
}
