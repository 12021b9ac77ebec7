package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-magiclink/pkg/types"
)

// reservedAttributes never flow from link attributes into the user record.
var reservedAttributes = map[string]bool{
	"id":            true,
	"email":         true,
	"phone":         true,
	"password":      true,
	"password_hash": true,
}

func (c *VerifyMagicLinkCommand) upsertUser(ctx context.Context, link types.MagicLink, at time.Time) (*types.User, error) {
	existing, err := c.users.FindByIdentifier(ctx, link.Identifier)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return c.ensurePassword(ctx, existing)
	}

	hash, err := c.placeholderHash()
	if err != nil {
		return nil, err
	}
	user := types.User{
		Name:         defaultUserName(link),
		PasswordHash: hash,
		Attributes:   userAttributes(link.Attributes),
	}
	if link.Identifier.IsEmail() {
		verifiedAt := at
		user.Email = link.Identifier.Email()
		user.EmailVerifiedAt = &verifiedAt
	} else {
		user.Phone = link.Identifier.Phone()
	}
	created, err := c.users.Create(ctx, user)
	if !errors.Is(err, types.ErrUserExists) {
		return created, err
	}

	// a concurrent redemption created the user between the read and the insert
	existing, err = c.users.FindByIdentifier(ctx, link.Identifier)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, types.ErrUserExists
	}
	return c.ensurePassword(ctx, existing)
}

func (c *VerifyMagicLinkCommand) ensurePassword(ctx context.Context, user *types.User) (*types.User, error) {
	if user.PasswordHash != "" {
		return user, nil
	}
	hash, err := c.placeholderHash()
	if err != nil {
		return nil, err
	}
	if err := c.users.SetPassword(ctx, user.ID, hash); err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	return user, nil
}

// placeholderHash hashes a random password nobody knows, so the account can
// only be entered through magic links until a password is set.
func (c *VerifyMagicLinkCommand) placeholderHash() (string, error) {
	plain, err := c.secrets.Secret()
	if err != nil {
		return "", err
	}
	return c.hasher.Hash(plain)
}

func defaultUserName(link types.MagicLink) string {
	if name, ok := link.Attributes["name"]; ok && name != nil {
		if value := strings.TrimSpace(fmt.Sprint(name)); value != "" {
			return value
		}
	}
	if link.Identifier.IsEmail() {
		local, _, _ := strings.Cut(link.Identifier.Email(), "@")
		return local
	}
	return link.Identifier.Phone()
}

func userAttributes(attrs map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range attrs {
		if reservedAttributes[strings.ToLower(k)] || k == "name" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
