package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-magiclink/pkg/types"
)

const (
	// SecureLinkActionLogin tags magic link payloads.
	SecureLinkActionLogin = "magic_link_login"
	// SecureLinkRouteVerify names the verification route the signed URL targets.
	SecureLinkRouteVerify = "magic_link_verify"
)

// linkPayload is the claim set a signed URL carries. ExpiresAt mirrors the
// stored row.
type linkPayload struct {
	Action    string
	Secret    string
	Guard     string
	ExpiresAt time.Time
}

func newLinkPayload(link types.MagicLink) linkPayload {
	return linkPayload{
		Action:    SecureLinkActionLogin,
		Secret:    link.Secret,
		Guard:     link.Guard,
		ExpiresAt: link.ExpiresAt,
	}
}

func (p linkPayload) encode() types.SecureLinkPayload {
	out := types.SecureLinkPayload{
		"action": p.Action,
		"secret": p.Secret,
		"guard":  p.Guard,
	}
	if !p.ExpiresAt.IsZero() {
		out["expires_at"] = p.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func decodeLinkPayload(raw map[string]any) linkPayload {
	text := func(key string) string {
		if v, ok := raw[key]; ok && v != nil {
			return strings.TrimSpace(fmt.Sprint(v))
		}
		return ""
	}
	p := linkPayload{
		Action: text("action"),
		Secret: text("secret"),
		Guard:  text("guard"),
	}
	switch v := raw["expires_at"].(type) {
	case time.Time:
		p.ExpiresAt = v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v)); err == nil {
			p.ExpiresAt = t
		}
	}
	return p
}

// expired reports whether the embedded deadline is missing or not after at.
func (p linkPayload) expired(at time.Time) bool {
	return p.ExpiresAt.IsZero() || !p.ExpiresAt.After(at)
}
