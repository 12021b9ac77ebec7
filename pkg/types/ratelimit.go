package types

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RateLimiter tracks attempts per key inside a fixed window that starts at
// the first hit. Implementations must increment atomically.
type RateLimiter interface {
	TooManyAttempts(ctx context.Context, key string, maxAttempts int) (bool, error)
	Hit(ctx context.Context, key string, window time.Duration) (int, error)
	Remaining(ctx context.Context, key string, maxAttempts int) (int, error)
	AvailableIn(ctx context.Context, key string) (time.Duration, error)
	Clear(ctx context.Context, key string) error
}

// RateLimitError reports an exhausted issuance window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("magiclink: too many attempts, retry after %s", e.RetryAfter.Round(time.Second))
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second > 0 {
		secs++
	}
	return secs
}

// IsRateLimitError checks if err wraps a RateLimitError.
func IsRateLimitError(err error) bool {
	_, ok := AsRateLimitError(err)
	return ok
}

// AsRateLimitError extracts the RateLimitError from err if present.
func AsRateLimitError(err error) (*RateLimitError, bool) {
	var target *RateLimitError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// RateLimitKey is the limiter key tracking issuance for identifier.
func RateLimitKey(identifier Identifier) string {
	return "magic-link:" + identifier.Value
}
