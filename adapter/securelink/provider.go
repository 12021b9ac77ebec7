package securelink

import (
	"errors"
	"time"

	"github.com/goliatone/go-magiclink/pkg/types"
)

// Provider hands out one manager per guard so each signed link expires with
// the token it carries. Guards sharing a lifetime share a manager.
type Provider struct {
	byGuard map[string]types.SecureLinkManager
}

// ProviderConfig wires a Provider.
type ProviderConfig struct {
	Base              Config
	Guards            types.Guards
	DefaultExpiration time.Duration
	// GuardPath, when set, gives each guard its own verification path so the
	// link identifies the guard it was issued for.
	GuardPath func(guard string) string
	// Factory builds managers; defaults to NewManager.
	Factory func(types.SecureLinkConfigurator) (types.SecureLinkManager, error)
}

type managerKey struct {
	ttl  time.Duration
	path string
}

// NewProvider builds managers for every configured guard.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if len(cfg.Guards) == 0 {
		return nil, errors.New("securelink: at least one guard required")
	}
	if cfg.DefaultExpiration <= 0 {
		return nil, errors.New("securelink: default expiration required")
	}
	factory := cfg.Factory
	if factory == nil {
		factory = func(c types.SecureLinkConfigurator) (types.SecureLinkManager, error) {
			return NewManager(c)
		}
	}
	built := make(map[managerKey]types.SecureLinkManager)
	byGuard := make(map[string]types.SecureLinkManager, len(cfg.Guards))
	for _, name := range cfg.Guards.Names() {
		guard, _ := cfg.Guards.Lookup(name)
		key := managerKey{ttl: guard.ExpirationOr(cfg.DefaultExpiration)}
		if cfg.GuardPath != nil {
			key.path = cfg.GuardPath(name)
		}
		manager, ok := built[key]
		if !ok {
			linkCfg := cfg.Base.WithExpiration(key.ttl)
			if key.path != "" {
				linkCfg = linkCfg.WithRoute(RouteVerify, key.path)
			}
			m, err := factory(linkCfg)
			if err != nil {
				return nil, err
			}
			manager = m
			built[key] = manager
		}
		byGuard[name] = manager
	}
	return &Provider{byGuard: byGuard}, nil
}

var _ types.SecureLinkProvider = (*Provider)(nil)

// ManagerFor implements types.SecureLinkProvider.
func (p *Provider) ManagerFor(guard string) (types.SecureLinkManager, error) {
	if p == nil {
		return nil, types.ErrMissingSecureLinks
	}
	manager, ok := p.byGuard[guard]
	if !ok {
		return nil, types.ErrUnknownGuard
	}
	return manager, nil
}
