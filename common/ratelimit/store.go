package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps counter-store failures. The limiter reports
// these as errors, never as denials; the fail-open/fail-closed decision
// belongs to the caller.
var ErrStoreUnavailable = errors.New("counter store unavailable")

// CounterStore is the atomicity primitive the limiter runs on. Every
// implementation must make each operation linearizable per key: no two
// concurrent calls for the same key may both consume the last token.
type CounterStore interface {
	// ConsumeTokenBucket refills the bucket by elapsed time and consumes
	// cost tokens if available. Returns whether the consume succeeded and
	// the tokens remaining afterwards.
	ConsumeTokenBucket(ctx context.Context, key string, capacity, refillPerMinute, cost int64, ttl time.Duration) (allowed bool, remaining int64, err error)

	// ConsumeSlidingWindow admits one event if fewer than limit occurred
	// in the trailing window. Returns the count inside the window after
	// the call.
	ConsumeSlidingWindow(ctx context.Context, key string, limit int64, window time.Duration) (allowed bool, count int64, err error)

	// Reset deletes the bucket or window, which reads as full/empty on
	// the next check.
	Reset(ctx context.Context, key string) error
}
