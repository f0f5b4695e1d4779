package service

import (
	"context"
	"fmt"

	"github.com/pixelbay/mediahost/common/logger"
	"github.com/pixelbay/mediahost/common/quota"
	"github.com/pixelbay/mediahost/common/ratelimit"
)

// AdminService performs operator resets of rate-limit buckets and usage
// counters. These bypass normal accounting and exist for support cases;
// request traffic never reaches them.
type AdminService struct {
	limiter *ratelimit.Limiter
	engine  *quota.Engine
	log     *logger.Logger
}

// NewAdminService creates an admin service
func NewAdminService(limiter *ratelimit.Limiter, engine *quota.Engine, log *logger.Logger) *AdminService {
	return &AdminService{limiter: limiter, engine: engine, log: log}
}

var resettableCounters = map[string]bool{
	quota.CounterDailyUploads:     true,
	quota.CounterMonthlyUploads:   true,
	quota.CounterDailyBytes:       true,
	quota.CounterMonthlyBytes:     true,
	quota.CounterDailyBandwidth:   true,
	quota.CounterMonthlyBandwidth: true,
}

// ResetRateLimit clears one of the subject's token buckets
func (s *AdminService) ResetRateLimit(ctx context.Context, subjectID string, window string) error {
	switch ratelimit.Window(window) {
	case ratelimit.WindowMinute, ratelimit.WindowHour, ratelimit.WindowDay:
	default:
		return fmt.Errorf("unknown rate limit window %q", window)
	}
	return s.limiter.Reset(ctx, subjectID, ratelimit.Window(window))
}

// ResetUsageCounter clears one usage counter for a subject
func (s *AdminService) ResetUsageCounter(ctx context.Context, subjectID, kind string) error {
	if !resettableCounters[kind] {
		return fmt.Errorf("unknown usage counter %q", kind)
	}
	return s.engine.ResetCounter(ctx, subjectID, kind)
}
