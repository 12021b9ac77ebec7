package securelink

import (
	"testing"
	"time"

	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/stretchr/testify/require"
)

type recordingManager struct {
	expiration time.Duration
}

func (m *recordingManager) Generate(string, ...types.SecureLinkPayload) (string, error) {
	return "", nil
}

func (m *recordingManager) Validate(string) (map[string]any, error) { return nil, nil }

func (m *recordingManager) GetAndValidate(func(string) string) (types.SecureLinkPayload, error) {
	return nil, nil
}

func (m *recordingManager) GetExpiration() time.Duration { return m.expiration }

func TestProvider_ManagerPerGuardLifetime(t *testing.T) {
	built := 0
	provider, err := NewProvider(ProviderConfig{
		Base: Config{SigningKey: "k", BaseURL: "https://app.test", AsQuery: true},
		Guards: types.Guards{
			"web":   {RedirectOnSuccess: "/dashboard"},
			"api":   {RedirectOnSuccess: "/api"},
			"admin": {Expiration: 5 * time.Minute},
		},
		DefaultExpiration: 15 * time.Minute,
		Factory: func(cfg types.SecureLinkConfigurator) (types.SecureLinkManager, error) {
			built++
			require.Equal(t, DefaultQueryKey, cfg.GetQueryKey())
			require.Equal(t, DefaultVerifyPath, cfg.GetRoutes()[RouteVerify])
			return &recordingManager{expiration: cfg.GetExpiration()}, nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, built)

	web, err := provider.ManagerFor("web")
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, web.GetExpiration())

	api, err := provider.ManagerFor("api")
	require.NoError(t, err)
	require.Same(t, web, api)

	admin, err := provider.ManagerFor("admin")
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, admin.GetExpiration())

	_, err = provider.ManagerFor("missing")
	require.ErrorIs(t, err, types.ErrUnknownGuard)
}

func TestProvider_RequiresGuards(t *testing.T) {
	_, err := NewProvider(ProviderConfig{DefaultExpiration: time.Minute})
	require.Error(t, err)
}

func TestConfig_RoutesMergeOverrides(t *testing.T) {
	cfg := Config{Routes: map[string]string{RouteVerify: "/login/magic", "other": "/x"}, BaseURL: "https://app.test/"}
	routes := cfg.GetRoutes()
	require.Equal(t, "/login/magic", routes[RouteVerify])
	require.Equal(t, "/x", routes["other"])
	require.Equal(t, "https://app.test", cfg.GetBaseURL())
}

func TestProvider_GuardPathSplitsManagers(t *testing.T) {
	paths := map[string]string{}
	provider, err := NewProvider(ProviderConfig{
		Base: Config{SigningKey: "k", BaseURL: "https://app.test", AsQuery: true},
		Guards: types.Guards{
			"web": {},
			"api": {},
		},
		DefaultExpiration: 15 * time.Minute,
		GuardPath:         func(guard string) string { return DefaultVerifyPath + "/" + guard },
		Factory: func(cfg types.SecureLinkConfigurator) (types.SecureLinkManager, error) {
			path := cfg.GetRoutes()[RouteVerify]
			paths[path] = path
			return &recordingManager{expiration: cfg.GetExpiration()}, nil
		},
	})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	require.Contains(t, paths, "/auth/verify/web")
	require.Contains(t, paths, "/auth/verify/api")

	web, err := provider.ManagerFor("web")
	require.NoError(t, err)
	api, err := provider.ManagerFor("api")
	require.NoError(t, err)
	require.NotSame(t, web, api)
}

func TestNewManager_RejectsIncompleteConfig(t *testing.T) {
	_, err := NewManager(nil)
	require.Error(t, err)

	_, err = NewManager(Config{BaseURL: "https://app.test"})
	require.ErrorContains(t, err, "signing key")
}

func TestManager_NilIsSafe(t *testing.T) {
	var m *Manager
	_, err := m.Generate(RouteVerify)
	require.Error(t, err)
	_, err = m.Validate("token")
	require.Error(t, err)
	require.Zero(t, m.GetExpiration())
}
