package securelink

import (
	"strings"
	"time"

	"github.com/goliatone/go-magiclink/pkg/types"
)

const (
	// RouteVerify names the verification route in the manager route table.
	RouteVerify = "magic_link_verify"
	// DefaultQueryKey carries the signed token in the verification URL.
	DefaultQueryKey = "token"
	// DefaultVerifyPath is the transport path serving verification.
	DefaultVerifyPath = "/auth/verify"
)

// Config implements types.SecureLinkConfigurator.
type Config struct {
	SigningKey string
	Expiration time.Duration
	BaseURL    string
	QueryKey   string
	Routes     map[string]string
	AsQuery    bool
}

var _ types.SecureLinkConfigurator = Config{}

// GetSigningKey implements types.SecureLinkConfigurator.
func (c Config) GetSigningKey() string { return c.SigningKey }

// GetExpiration implements types.SecureLinkConfigurator.
func (c Config) GetExpiration() time.Duration { return c.Expiration }

// GetBaseURL implements types.SecureLinkConfigurator.
func (c Config) GetBaseURL() string { return strings.TrimRight(c.BaseURL, "/") }

// GetQueryKey implements types.SecureLinkConfigurator.
func (c Config) GetQueryKey() string {
	if strings.TrimSpace(c.QueryKey) == "" {
		return DefaultQueryKey
	}
	return c.QueryKey
}

// GetRoutes implements types.SecureLinkConfigurator.
func (c Config) GetRoutes() map[string]string {
	routes := map[string]string{RouteVerify: DefaultVerifyPath}
	for name, path := range c.Routes {
		routes[name] = path
	}
	return routes
}

// GetAsQuery implements types.SecureLinkConfigurator.
func (c Config) GetAsQuery() bool { return c.AsQuery }

// WithExpiration returns a copy using ttl.
func (c Config) WithExpiration(ttl time.Duration) Config {
	c.Expiration = ttl
	return c
}

// WithRoute returns a copy with name mapped to path.
func (c Config) WithRoute(name, path string) Config {
	routes := make(map[string]string, len(c.Routes)+1)
	for k, v := range c.Routes {
		routes[k] = v
	}
	routes[name] = path
	c.Routes = routes
	return c
}
