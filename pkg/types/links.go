package types

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// MagicLink is a persisted single-use login token bound to an identifier and
// guard. It can be redeemed while Used is false and ExpiresAt lies ahead.
type MagicLink struct {
	ID         uuid.UUID
	Identifier Identifier
	Secret     string
	Guard      string
	Used       bool
	Attributes map[string]any
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Redeemable reports whether the link can still be consumed at the given time.
func (l MagicLink) Redeemable(at time.Time) bool {
	return !l.Used && l.ExpiresAt.After(at)
}

// LinkStats aggregates token counts. Expired counts unused tokens past their
// deadline; Active counts redeemable ones.
type LinkStats struct {
	Total   int
	Used    int
	Expired int
	Active  int
}

// StatsFilter narrows statistics and bulk invalidation. Zero values match all.
type StatsFilter struct {
	Identifier *Identifier
	Guard      string
}

// TokenStore persists magic links. Mutating calls honour the transaction
// carried in ctx when a TxManager opened one.
type TokenStore interface {
	// Create inserts a new link. The caller is responsible for invalidating
	// prior redeemable links for the same identifier and guard in the same
	// transaction.
	Create(ctx context.Context, link MagicLink) (*MagicLink, error)
	// FindRedeemable returns the link matching secret and guard that is
	// unused and unexpired, or nil when none matches.
	FindRedeemable(ctx context.Context, secret, guard string, at time.Time) (*MagicLink, error)
	// Consume flips used on a redeemable link. It returns ErrLinkNotRedeemable
	// when another caller won the race or the link expired.
	Consume(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkUsed flips used regardless of expiry. Used to fail closed after a
	// delivery failure.
	MarkUsed(ctx context.Context, id uuid.UUID) error
	// InvalidateRedeemable marks every redeemable link for the identifier
	// (optionally limited to a guard) as used and returns how many changed.
	InvalidateRedeemable(ctx context.Context, identifier Identifier, guard string, at time.Time) (int, error)
	// DeleteExpired removes links whose deadline passed and returns the count.
	DeleteExpired(ctx context.Context, at time.Time) (int, error)
	// Stats aggregates counts for the filter.
	Stats(ctx context.Context, filter StatsFilter, at time.Time) (LinkStats, error)
}

// SecretBytes is the entropy drawn for every link secret.
const SecretBytes = 32

// SecretGenerator produces link secrets.
type SecretGenerator interface {
	Secret() (string, error)
}

// RandomSecretGenerator draws SecretBytes from crypto/rand and hex encodes
// them.
type RandomSecretGenerator struct{}

// Secret implements SecretGenerator.
func (RandomSecretGenerator) Secret() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
