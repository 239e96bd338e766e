package rate

import (
	"context"
	"time"
)

// Limiter is the sliding-window contract shared by [Memory] and [Redis].
type Limiter interface {
	// IsRateLimited purges expired attempts for key and reports whether the
	// remaining count has reached maxAttempts. It never records an attempt.
	IsRateLimited(ctx context.Context, key string, maxAttempts int, window time.Duration) (bool, error)
	// RecordAttempt appends the current instant to key's record.
	RecordAttempt(ctx context.Context, key string) error
	// Clear removes key's record entirely.
	Clear(ctx context.Context, key string) error
}

var (
	_ Limiter = (*Memory)(nil)
	_ Limiter = (*Redis)(nil)
)
