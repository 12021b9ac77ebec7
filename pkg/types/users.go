package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is the account a redeemed magic link resolves to.
type User struct {
	ID              uuid.UUID
	Email           string
	Phone           string
	Name            string
	PasswordHash    string
	EmailVerifiedAt *time.Time
	Attributes      map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserRepository exposes the account operations redemption needs. Calls made
// with a transactional ctx join that transaction.
type UserRepository interface {
	FindByIdentifier(ctx context.Context, identifier Identifier) (*User, error)
	Create(ctx context.Context, user User) (*User, error)
	SetPassword(ctx context.Context, id uuid.UUID, hash string) error
}

// PasswordHasher turns a plain secret into a storable hash.
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// SessionAuthenticator establishes a login for the user under guard.
type SessionAuthenticator interface {
	Login(ctx context.Context, guard string, user User) error
}
