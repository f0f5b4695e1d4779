package models

import "fmt"

// RateLimits holds token-bucket capacities per window
type RateLimits struct {
	RequestsPerMinute int64 `json:"requests_per_minute"`
	RequestsPerHour   int64 `json:"requests_per_hour"`
	RequestsPerDay    int64 `json:"requests_per_day"`
}

// SubjectLimits is the per-subject quota and rate-limit configuration.
// It is resolved once from the subject's stored limits blob and validated
// at the boundary; check sites never re-parse JSON.
type SubjectLimits struct {
	DailyLimit        int64      `json:"daily_limit"`
	MonthlyLimit      int64      `json:"monthly_limit"`
	MaxImages         int64      `json:"max_images"`
	MaxImageSizeBytes int64      `json:"max_image_size_bytes"`
	AllowedOrigins    []string   `json:"allowed_origins"`
	RateLimits        RateLimits `json:"rate_limits"`
}

// DefaultSubjectLimits returns the free-tier limits applied to subjects
// without an explicit limits blob.
func DefaultSubjectLimits() SubjectLimits {
	return SubjectLimits{
		DailyLimit:        100,
		MonthlyLimit:      1000,
		MaxImages:         500,
		MaxImageSizeBytes: 10 << 20, // 10 MiB
		AllowedOrigins:    []string{"*"},
		RateLimits: RateLimits{
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			RequestsPerDay:    10000,
		},
	}
}

// MaxStorageBytes is the aggregate storage ceiling for a subject.
func (l SubjectLimits) MaxStorageBytes() int64 {
	return l.MaxImageSizeBytes * l.MaxImages
}

// Validate checks that the limits are internally consistent.
func (l SubjectLimits) Validate() error {
	if l.DailyLimit <= 0 {
		return fmt.Errorf("daily_limit must be positive, got %d", l.DailyLimit)
	}
	if l.MonthlyLimit < l.DailyLimit {
		return fmt.Errorf("monthly_limit %d must be >= daily_limit %d", l.MonthlyLimit, l.DailyLimit)
	}
	if l.MaxImages <= 0 {
		return fmt.Errorf("max_images must be positive, got %d", l.MaxImages)
	}
	if l.MaxImageSizeBytes <= 0 {
		return fmt.Errorf("max_image_size_bytes must be positive, got %d", l.MaxImageSizeBytes)
	}
	if l.RateLimits.RequestsPerMinute <= 0 || l.RateLimits.RequestsPerHour <= 0 || l.RateLimits.RequestsPerDay <= 0 {
		return fmt.Errorf("rate limit capacities must be positive: %+v", l.RateLimits)
	}
	if l.RateLimits.RequestsPerHour < l.RateLimits.RequestsPerMinute {
		return fmt.Errorf("requests_per_hour %d must be >= requests_per_minute %d",
			l.RateLimits.RequestsPerHour, l.RateLimits.RequestsPerMinute)
	}
	return nil
}

// Subject identifies the rate-limited caller (API key or user) for one
// request. The auth layer resolves it and attaches it to the request
// context before the admission middleware runs.
type Subject struct {
	ID      string        `json:"id"`
	OwnerID string        `json:"owner_id"`
	Limits  SubjectLimits `json:"limits"`
}
