package tokens

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the persisted magic_links row. Exactly one of Email and Phone
// is set.
type Record struct {
	bun.BaseModel `bun:"table:magic_links"`

	ID         uuid.UUID      `bun:"id,pk,type:uuid"`
	Email      string         `bun:"email,nullzero"`
	Phone      string         `bun:"phone,nullzero"`
	Secret     string         `bun:"secret,notnull"`
	Guard      string         `bun:"guard,notnull"`
	Used       bool           `bun:"used,notnull"`
	Attributes map[string]any `bun:"attributes,type:jsonb"`
	ExpiresAt  time.Time      `bun:"expires_at,notnull"`
	CreatedAt  time.Time      `bun:"created_at"`
	UpdatedAt  time.Time      `bun:"updated_at"`
}
