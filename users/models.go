package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the persisted magic_users row.
type Record struct {
	bun.BaseModel `bun:"table:magic_users"`

	ID              uuid.UUID      `bun:"id,pk,type:uuid"`
	Email           string         `bun:"email,nullzero"`
	Phone           string         `bun:"phone,nullzero"`
	Name            string         `bun:"name,notnull"`
	PasswordHash    string         `bun:"password_hash,notnull"`
	EmailVerifiedAt *time.Time     `bun:"email_verified_at,nullzero"`
	Attributes      map[string]any `bun:"attributes,type:jsonb"`
	CreatedAt       time.Time      `bun:"created_at"`
	UpdatedAt       time.Time      `bun:"updated_at"`
}
