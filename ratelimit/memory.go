package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-magiclink/pkg/types"
)

type fixedWindowEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryLimiter keeps per-key windows in process memory. Suitable for a
// single instance or tests; use RedisLimiter when several instances share
// limits.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*fixedWindowEntry
	clock   types.Clock
}

// NewMemoryLimiter creates a memory limiter. A nil clock uses system time.
func NewMemoryLimiter(clock types.Clock) *MemoryLimiter {
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &MemoryLimiter{
		entries: make(map[string]*fixedWindowEntry),
		clock:   clock,
	}
}

var _ types.RateLimiter = (*MemoryLimiter)(nil)

// TooManyAttempts reports whether key reached maxAttempts in its window.
func (r *MemoryLimiter) TooManyAttempts(_ context.Context, key string, maxAttempts int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.active(key)
	if entry == nil {
		return false, nil
	}
	return entry.count >= maxAttempts, nil
}

// Hit records one attempt and returns the count in the current window.
func (r *MemoryLimiter) Hit(_ context.Context, key string, window time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.active(key)
	if entry == nil {
		entry = &fixedWindowEntry{expiresAt: r.clock.Now().Add(window)}
		r.entries[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// Remaining returns the attempts left before key is throttled.
func (r *MemoryLimiter) Remaining(_ context.Context, key string, maxAttempts int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	if entry := r.active(key); entry != nil {
		count = entry.count
	}
	return clampRemaining(maxAttempts - count), nil
}

// AvailableIn returns the time until key's window resets.
func (r *MemoryLimiter) AvailableIn(_ context.Context, key string) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.active(key)
	if entry == nil {
		return 0, nil
	}
	return entry.expiresAt.Sub(r.clock.Now()), nil
}

// Clear drops the window for key.
func (r *MemoryLimiter) Clear(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}

// active returns the live entry for key, evicting it once expired. Callers
// hold mu.
func (r *MemoryLimiter) active(key string) *fixedWindowEntry {
	entry, ok := r.entries[key]
	if !ok {
		return nil
	}
	if !r.clock.Now().Before(entry.expiresAt) {
		delete(r.entries, key)
		return nil
	}
	return entry
}

func clampRemaining(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
