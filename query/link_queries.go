package query

import (
	"context"
	"errors"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-magiclink/pkg/types"
)

// ErrSecretRequired indicates the link secret was omitted.
var ErrSecretRequired = errors.New("magiclink: secret required")

// StatsQueryInput narrows the aggregated link counts.
type StatsQueryInput struct {
	Identifier string
	Guard      string
}

// Type implements gocommand.Message.
func (StatsQueryInput) Type() string {
	return "query.magiclink.stats"
}

// Validate implements gocommand.Message.
func (StatsQueryInput) Validate() error {
	return nil
}

// StatsQuery aggregates total, used, expired and active link counts.
type StatsQuery struct {
	tokens types.TokenStore
	clock  types.Clock
}

// NewStatsQuery constructs the stats query.
func NewStatsQuery(tokens types.TokenStore, clock types.Clock) *StatsQuery {
	return &StatsQuery{tokens: tokens, clock: safeClock(clock)}
}

var _ gocommand.Querier[StatsQueryInput, types.LinkStats] = (*StatsQuery)(nil)

// Query returns counts for the filter. Empty fields match everything.
func (q *StatsQuery) Query(ctx context.Context, input StatsQueryInput) (types.LinkStats, error) {
	if q.tokens == nil {
		return types.LinkStats{}, types.ErrMissingTokenStore
	}
	filter := types.StatsFilter{Guard: strings.TrimSpace(input.Guard)}
	if strings.TrimSpace(input.Identifier) != "" {
		identifier, err := types.ParseIdentifier(input.Identifier)
		if err != nil {
			return types.LinkStats{}, err
		}
		filter.Identifier = &identifier
	}
	return q.tokens.Stats(ctx, filter, q.clock.Now())
}

// LinkValidityInput identifies a stored link by secret and guard.
type LinkValidityInput struct {
	Secret string
	Guard  string
}

// Type implements gocommand.Message.
func (LinkValidityInput) Type() string {
	return "query.magiclink.validity"
}

// Validate implements gocommand.Message.
func (input LinkValidityInput) Validate() error {
	if strings.TrimSpace(input.Secret) == "" {
		return ErrSecretRequired
	}
	if strings.TrimSpace(input.Guard) == "" {
		return types.ErrGuardRequired
	}
	return nil
}

// LinkValidityQuery reports whether a link is still redeemable without
// consuming it.
type LinkValidityQuery struct {
	tokens types.TokenStore
	clock  types.Clock
}

// NewLinkValidityQuery constructs the validity query.
func NewLinkValidityQuery(tokens types.TokenStore, clock types.Clock) *LinkValidityQuery {
	return &LinkValidityQuery{tokens: tokens, clock: safeClock(clock)}
}

var _ gocommand.Querier[LinkValidityInput, bool] = (*LinkValidityQuery)(nil)

// Query returns true when the link exists, is unused and has not expired.
func (q *LinkValidityQuery) Query(ctx context.Context, input LinkValidityInput) (bool, error) {
	if q.tokens == nil {
		return false, types.ErrMissingTokenStore
	}
	if err := input.Validate(); err != nil {
		return false, err
	}
	link, err := q.tokens.FindRedeemable(ctx, strings.TrimSpace(input.Secret), strings.TrimSpace(input.Guard), q.clock.Now())
	if err != nil {
		return false, err
	}
	return link != nil, nil
}

func safeClock(clock types.Clock) types.Clock {
	if clock != nil {
		return clock
	}
	return types.SystemClock{}
}
