package query

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/goliatone/go-magiclink/ratelimit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestStatsQuery_BuildsFilter(t *testing.T) {
	store := &fakeTokenStore{stats: types.LinkStats{Total: 3, Used: 1, Expired: 1, Active: 1}}
	query := NewStatsQuery(store, fixedClock{t: baseTime})

	stats, err := query.Query(context.Background(), StatsQueryInput{Identifier: "Alice@Example.com", Guard: "web"})
	require.NoError(t, err)
	require.Equal(t, store.stats, stats)
	require.NotNil(t, store.lastFilter.Identifier)
	require.Equal(t, types.EmailIdentifier("alice@example.com"), *store.lastFilter.Identifier)
	require.Equal(t, "web", store.lastFilter.Guard)
	require.Equal(t, baseTime, store.lastAt)

	_, err = query.Query(context.Background(), StatsQueryInput{})
	require.NoError(t, err)
	require.Nil(t, store.lastFilter.Identifier)
}

func TestLinkValidityQuery(t *testing.T) {
	store := &fakeTokenStore{redeemable: map[string]bool{"web/abc": true}}
	query := NewLinkValidityQuery(store, fixedClock{t: baseTime})

	valid, err := query.Query(context.Background(), LinkValidityInput{Secret: "abc", Guard: "web"})
	require.NoError(t, err)
	require.True(t, valid)

	valid, err = query.Query(context.Background(), LinkValidityInput{Secret: "abc", Guard: "admin"})
	require.NoError(t, err)
	require.False(t, valid)

	_, err = query.Query(context.Background(), LinkValidityInput{Guard: "web"})
	require.ErrorIs(t, err, ErrSecretRequired)
}

func TestRemainingAttemptsQuery(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(fixedClock{t: baseTime})
	query := NewRemainingAttemptsQuery(limiter, 5)

	remaining, err := query.Query(context.Background(), RemainingAttemptsInput{Identifier: "alice@example.com"})
	require.NoError(t, err)
	require.Equal(t, 5, remaining)

	_, err = limiter.Hit(context.Background(), "magic-link:alice@example.com", time.Minute)
	require.NoError(t, err)
	remaining, err = query.Query(context.Background(), RemainingAttemptsInput{Identifier: "ALICE@example.com"})
	require.NoError(t, err)
	require.Equal(t, 4, remaining)

	_, err = query.Query(context.Background(), RemainingAttemptsInput{})
	require.ErrorIs(t, err, types.ErrIdentifierRequired)
}

func TestQueriesRequireDependencies(t *testing.T) {
	_, err := NewStatsQuery(nil, nil).Query(context.Background(), StatsQueryInput{})
	require.ErrorIs(t, err, types.ErrMissingTokenStore)
	_, err = NewRemainingAttemptsQuery(nil, 5).Query(context.Background(), RemainingAttemptsInput{Identifier: "a@b.co"})
	require.ErrorIs(t, err, types.ErrMissingRateLimiter)
}

type fakeTokenStore struct {
	stats      types.LinkStats
	lastFilter types.StatsFilter
	lastAt     time.Time
	redeemable map[string]bool
}

func (f *fakeTokenStore) Create(_ context.Context, link types.MagicLink) (*types.MagicLink, error) {
	return &link, nil
}

func (f *fakeTokenStore) FindRedeemable(_ context.Context, secret, guard string, _ time.Time) (*types.MagicLink, error) {
	if !f.redeemable[guard+"/"+secret] {
		return nil, nil
	}
	return &types.MagicLink{ID: uuid.New(), Secret: secret, Guard: guard}, nil
}

func (f *fakeTokenStore) Consume(context.Context, uuid.UUID, time.Time) error { return nil }

func (f *fakeTokenStore) MarkUsed(context.Context, uuid.UUID) error { return nil }

func (f *fakeTokenStore) InvalidateRedeemable(context.Context, types.Identifier, string, time.Time) (int, error) {
	return 0, nil
}

func (f *fakeTokenStore) DeleteExpired(context.Context, time.Time) (int, error) { return 0, nil }

func (f *fakeTokenStore) Stats(_ context.Context, filter types.StatsFilter, at time.Time) (types.LinkStats, error) {
	f.lastFilter = filter
	f.lastAt = at
	return f.stats, nil
}
