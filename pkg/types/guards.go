package types

import (
	"sort"
	"strings"
	"time"
)

// GuardConfig scopes a magic link to an authentication context.
type GuardConfig struct {
	Name string
	// Provider names the user store backing the guard.
	Provider string
	// Expiration overrides the global link lifetime when positive.
	Expiration        time.Duration
	RedirectOnSuccess string
}

// Guards indexes guard configuration by name. It is loaded once and never
// mutated afterwards.
type Guards map[string]GuardConfig

// Lookup returns the guard registered under name.
func (g Guards) Lookup(name string) (GuardConfig, bool) {
	if g == nil {
		return GuardConfig{}, false
	}
	cfg, ok := g[strings.TrimSpace(name)]
	if !ok {
		return GuardConfig{}, false
	}
	if cfg.Name == "" {
		cfg.Name = strings.TrimSpace(name)
	}
	return cfg, true
}

// Names returns the registered guard names in sorted order.
func (g Guards) Names() []string {
	out := make([]string, 0, len(g))
	for name := range g {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ExpirationOr returns the guard override or the fallback duration.
func (cfg GuardConfig) ExpirationOr(fallback time.Duration) time.Duration {
	if cfg.Expiration > 0 {
		return cfg.Expiration
	}
	return fallback
}
