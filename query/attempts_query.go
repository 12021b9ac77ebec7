package query

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-magiclink/pkg/types"
)

// RemainingAttemptsInput names the identifier whose issuance window is read.
type RemainingAttemptsInput struct {
	Identifier string
}

// Type implements gocommand.Message.
func (RemainingAttemptsInput) Type() string {
	return "query.magiclink.remaining_attempts"
}

// Validate implements gocommand.Message.
func (input RemainingAttemptsInput) Validate() error {
	if input.Identifier == "" {
		return types.ErrIdentifierRequired
	}
	return nil
}

// RemainingAttemptsQuery reads how many issuances are left in the window.
type RemainingAttemptsQuery struct {
	limiter     types.RateLimiter
	maxAttempts int
}

// NewRemainingAttemptsQuery constructs the query for a per-window maximum.
func NewRemainingAttemptsQuery(limiter types.RateLimiter, maxAttempts int) *RemainingAttemptsQuery {
	return &RemainingAttemptsQuery{limiter: limiter, maxAttempts: maxAttempts}
}

var _ gocommand.Querier[RemainingAttemptsInput, int] = (*RemainingAttemptsQuery)(nil)

// Query returns the remaining attempts, never negative.
func (q *RemainingAttemptsQuery) Query(ctx context.Context, input RemainingAttemptsInput) (int, error) {
	if q.limiter == nil {
		return 0, types.ErrMissingRateLimiter
	}
	identifier, err := types.ParseIdentifier(input.Identifier)
	if err != nil {
		return 0, err
	}
	return q.limiter.Remaining(ctx, types.RateLimitKey(identifier), q.maxAttempts)
}
