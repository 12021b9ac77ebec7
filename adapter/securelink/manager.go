package securelink

import (
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-magiclink/pkg/types"
	urlkit "github.com/goliatone/go-urlkit/securelink"
)

var errNoManager = errors.New("securelink: manager not configured")

// Manager signs and validates magic link tokens through go-urlkit.
type Manager struct {
	inner urlkit.Manager
}

// NewManager builds a urlkit manager from cfg. The configuration must carry a
// signing key and a verification route.
func NewManager(cfg types.SecureLinkConfigurator) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("securelink: configurator required")
	}
	if cfg.GetSigningKey() == "" {
		return nil, errors.New("securelink: signing key required")
	}
	if _, ok := cfg.GetRoutes()[RouteVerify]; !ok {
		return nil, fmt.Errorf("securelink: route %q not configured", RouteVerify)
	}
	inner, err := urlkit.NewManagerFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("securelink: %w", err)
	}
	return &Manager{inner: inner}, nil
}

var _ types.SecureLinkManager = (*Manager)(nil)

// Generate returns the signed URL for route.
func (m *Manager) Generate(route string, payloads ...types.SecureLinkPayload) (string, error) {
	if m == nil || m.inner == nil {
		return "", errNoManager
	}
	converted := make([]urlkit.Payload, 0, len(payloads))
	for _, p := range payloads {
		converted = append(converted, urlkit.Payload(p))
	}
	return m.inner.Generate(route, converted...)
}

// Validate verifies the signature and lifetime of token.
func (m *Manager) Validate(token string) (map[string]any, error) {
	if m == nil || m.inner == nil {
		return nil, errNoManager
	}
	return m.inner.Validate(token)
}

// GetAndValidate reads the token with fn and validates it.
func (m *Manager) GetAndValidate(fn func(string) string) (types.SecureLinkPayload, error) {
	if m == nil || m.inner == nil {
		return nil, errNoManager
	}
	payload, err := m.inner.GetAndValidate(fn)
	if err != nil {
		return nil, err
	}
	return types.SecureLinkPayload(payload), nil
}

// GetExpiration reports the signed token lifetime.
func (m *Manager) GetExpiration() time.Duration {
	if m == nil || m.inner == nil {
		return 0
	}
	return m.inner.GetExpiration()
}
