package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service    ServiceConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Quota      QuotaConfig
	Processing ProcessingConfig
	Cache      CacheConfig
	Telemetry  TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds counter-store connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// RateLimitConfig holds token-bucket limiter settings
type RateLimitConfig struct {
	// BucketTTL bounds storage growth; an expired bucket reads as full
	BucketTTL time.Duration
	// CheckTimeout bounds each counter-store call on the admission path
	CheckTimeout time.Duration
	// Public endpoint sliding-window limits, keyed by client IP
	PublicPerMinute int64
	PublicPerHour   int64
}

// QuotaConfig holds usage-counter period settings
type QuotaConfig struct {
	DailyTTL   time.Duration
	MonthlyTTL time.Duration
	DefaultTTL time.Duration
}

// ProcessingConfig holds job pipeline settings
type ProcessingConfig struct {
	MaxWorkers     int
	QueueSize      int
	MaxRetries     int
	BaseRetryDelay time.Duration
	ThumbnailSizes []uint
	OutputDir      string
	WebPQuality    int
	AVIFQuality    int
	JPEGQuality    int
}

// CacheConfig holds transform/metadata cache settings
type CacheConfig struct {
	Enabled    bool
	MaxEntries int64
	DefaultTTL time.Duration
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnableMetrics bool
	MetricsPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "mediahost"),
			User:        getEnv("POSTGRES_USER", "mediahost"),
			Password:    getEnv("POSTGRES_PASSWORD", "mediahost"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			BucketTTL:       getEnvDuration("RATE_LIMIT_BUCKET_TTL", 1*time.Hour),
			CheckTimeout:    getEnvDuration("RATE_LIMIT_CHECK_TIMEOUT", 250*time.Millisecond),
			PublicPerMinute: int64(getEnvInt("PUBLIC_REQUESTS_PER_MINUTE", 10)),
			PublicPerHour:   int64(getEnvInt("PUBLIC_REQUESTS_PER_HOUR", 100)),
		},
		Quota: QuotaConfig{
			DailyTTL:   getEnvDuration("QUOTA_DAILY_TTL", 24*time.Hour),
			MonthlyTTL: getEnvDuration("QUOTA_MONTHLY_TTL", 30*24*time.Hour),
			DefaultTTL: getEnvDuration("QUOTA_DEFAULT_TTL", 1*time.Hour),
		},
		Processing: ProcessingConfig{
			MaxWorkers:     getEnvInt("PROCESSING_MAX_WORKERS", 4),
			QueueSize:      getEnvInt("PROCESSING_QUEUE_SIZE", 1000),
			MaxRetries:     getEnvInt("PROCESSING_MAX_RETRIES", 3),
			BaseRetryDelay: getEnvDuration("PROCESSING_BASE_RETRY_DELAY", 5*time.Second),
			ThumbnailSizes: getEnvUintSlice("PROCESSING_THUMBNAIL_SIZES", []uint{128, 256, 512}),
			OutputDir:      getEnv("PROCESSING_OUTPUT_DIR", "/var/lib/mediahost/variants"),
			WebPQuality:    getEnvInt("PROCESSING_WEBP_QUALITY", 85),
			AVIFQuality:    getEnvInt("PROCESSING_AVIF_QUALITY", 70),
			JPEGQuality:    getEnvInt("PROCESSING_JPEG_QUALITY", 85),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			MaxEntries: int64(getEnvInt("CACHE_MAX_ENTRIES", 10000)),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Telemetry: TelemetryConfig{
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPort:   getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Processing.MaxWorkers < 1 {
		return fmt.Errorf("processing max_workers must be >= 1, got %d", c.Processing.MaxWorkers)
	}

	if c.Processing.MaxRetries < 0 {
		return fmt.Errorf("processing max_retries must be >= 0, got %d", c.Processing.MaxRetries)
	}

	if c.RateLimit.BucketTTL <= 0 {
		return fmt.Errorf("rate limit bucket TTL must be positive")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the host:port address of the counter store
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvUintSlice(key string, defaultValue []uint) []uint {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]uint, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return defaultValue
		}
		out = append(out, uint(n))
	}
	return out
}
