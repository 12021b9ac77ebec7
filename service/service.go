package service

import (
	"context"
	"time"

	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-magiclink/command"
	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/goliatone/go-magiclink/query"
	"github.com/goliatone/go-magiclink/users"
)

// Service is the entry point for go-magiclink. It wires the token store,
// rate limiter, dispatcher and account collaborators supplied by the host
// application into the command/query facades.
type Service struct {
	cfg      Config
	commands Commands
	queries  Queries
}

// Commands exposes the service command handlers.
type Commands struct {
	Issue      *command.IssueMagicLinkCommand
	Verify     *command.VerifyMagicLinkCommand
	Invalidate *command.InvalidateLinksCommand
	Cleanup    *command.CleanupCommand
}

// Queries exposes read-model helpers.
type Queries struct {
	Stats             *query.StatsQuery
	LinkValidity      *query.LinkValidityQuery
	RemainingAttempts *query.RemainingAttemptsQuery
}

// Config captures all required dependencies so callers can provide their own
// instances (bun.DB backed stores, Redis limiter, queue transports, etc.).
type Config struct {
	Tokens        types.TokenStore
	Tx            types.TxManager
	Users         types.UserRepository
	Hasher        types.PasswordHasher
	Authenticator types.SessionAuthenticator
	RateLimiter   types.RateLimiter
	Dispatcher    types.NotificationDispatcher
	SecureLinks   types.SecureLinkProvider
	Guards        types.Guards
	Events        types.EventPublisher
	FeatureGate   featuregate.FeatureGate
	Secrets       types.SecretGenerator
	Clock         types.Clock
	Logger        types.Logger
	// Expiration is the link lifetime for guards without an override.
	Expiration      time.Duration
	MaxAttempts     int
	Decay           time.Duration
	DefaultRedirect string
}

// SendRequest describes a magic link issuance.
type SendRequest struct {
	Identifier string
	Guard      string
	Attributes map[string]any
	Channels   []types.Channel
}

// New constructs a Service from the supplied configuration.
func New(cfg Config) *Service {
	s := &Service{cfg: normalizeConfig(cfg)}
	s.commands = s.buildCommands()
	s.queries = s.buildQueries()
	return s
}

func normalizeConfig(cfg Config) Config {
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}
	if cfg.Events == nil {
		cfg.Events = types.NopPublisher{}
	}
	if cfg.Secrets == nil {
		cfg.Secrets = types.RandomSecretGenerator{}
	}
	if cfg.Hasher == nil {
		cfg.Hasher = users.BcryptHasher{}
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = command.DefaultLinkExpiration
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = command.DefaultMaxAttempts
	}
	if cfg.Decay <= 0 {
		cfg.Decay = command.DefaultDecay
	}
	return cfg
}

// Commands returns the command facade.
func (s *Service) Commands() Commands {
	return s.commands
}

// Queries returns the query facade.
func (s *Service) Queries() Queries {
	return s.queries
}

// Guards returns the configured guard table.
func (s *Service) Guards() types.Guards {
	if s == nil {
		return nil
	}
	return s.cfg.Guards
}

// SendMagicLink issues and delivers a link. It fails with ErrUnknownGuard,
// a *types.RateLimitError or a *types.DeliveryError.
func (s *Service) SendMagicLink(ctx context.Context, req SendRequest) (command.IssueMagicLinkResult, error) {
	result := command.IssueMagicLinkResult{}
	err := s.commands.Issue.Execute(ctx, command.IssueMagicLinkInput{
		Identifier: req.Identifier,
		Guard:      req.Guard,
		Attributes: req.Attributes,
		Channels:   req.Channels,
		Result:     &result,
	})
	return result, err
}

// VerifyAndLogin redeems the signed token. Invalid or expired links yield
// Valid=false without an error.
func (s *Service) VerifyAndLogin(ctx context.Context, token, guard string) (command.VerifyMagicLinkResult, error) {
	result := command.VerifyMagicLinkResult{}
	err := s.commands.Verify.Execute(ctx, command.VerifyMagicLinkInput{
		Token:  token,
		Guard:  guard,
		Result: &result,
	})
	return result, err
}

// Cleanup deletes expired links and returns how many were removed.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	count := 0
	err := s.commands.Cleanup.Execute(ctx, command.CleanupInput{Result: &count})
	return count, err
}

// InvalidateLinks burns every redeemable link for identifier. An empty guard
// matches all guards.
func (s *Service) InvalidateLinks(ctx context.Context, identifier, guard string) (int, error) {
	count := 0
	err := s.commands.Invalidate.Execute(ctx, command.InvalidateLinksInput{
		Identifier: identifier,
		Guard:      guard,
		Result:     &count,
	})
	return count, err
}

// IsValidLink reports whether the secret is redeemable under guard.
func (s *Service) IsValidLink(ctx context.Context, secret, guard string) (bool, error) {
	return s.queries.LinkValidity.Query(ctx, query.LinkValidityInput{Secret: secret, Guard: guard})
}

// GetStats aggregates link counts. Empty arguments match everything.
func (s *Service) GetStats(ctx context.Context, identifier, guard string) (types.LinkStats, error) {
	return s.queries.Stats.Query(ctx, query.StatsQueryInput{Identifier: identifier, Guard: guard})
}

// GetRemainingAttempts reports how many issuances identifier has left in the
// current window.
func (s *Service) GetRemainingAttempts(ctx context.Context, identifier string) (int, error) {
	return s.queries.RemainingAttempts.Query(ctx, query.RemainingAttemptsInput{Identifier: identifier})
}

// Ready reports whether the service has the required dependencies wired in.
func (s *Service) Ready() bool {
	return s.HealthCheck(context.Background()) == nil
}

// HealthCheck surfaces the first missing dependency.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s == nil {
		return types.ErrServiceNotReady
	}
	switch {
	case s.cfg.Tokens == nil:
		return types.ErrMissingTokenStore
	case s.cfg.Tx == nil:
		return types.ErrMissingTxManager
	case s.cfg.RateLimiter == nil:
		return types.ErrMissingRateLimiter
	case s.cfg.Dispatcher == nil:
		return types.ErrMissingDispatcher
	case s.cfg.Users == nil:
		return types.ErrMissingUserRepository
	case s.cfg.SecureLinks == nil:
		return types.ErrMissingSecureLinks
	case s.cfg.Authenticator == nil:
		return types.ErrMissingAuthenticator
	case len(s.cfg.Guards) == 0:
		return types.ErrUnknownGuard
	}
	return nil
}

func (s *Service) buildCommands() Commands {
	return Commands{
		Issue: command.NewIssueMagicLinkCommand(command.IssueMagicLinkConfig{
			Tokens:            s.cfg.Tokens,
			Tx:                s.cfg.Tx,
			RateLimiter:       s.cfg.RateLimiter,
			Dispatcher:        s.cfg.Dispatcher,
			SecureLinks:       s.cfg.SecureLinks,
			Guards:            s.cfg.Guards,
			Events:            s.cfg.Events,
			FeatureGate:       s.cfg.FeatureGate,
			Secrets:           s.cfg.Secrets,
			Clock:             s.cfg.Clock,
			Logger:            s.cfg.Logger,
			DefaultExpiration: s.cfg.Expiration,
			MaxAttempts:       s.cfg.MaxAttempts,
			Decay:             s.cfg.Decay,
		}),
		Verify: command.NewVerifyMagicLinkCommand(command.VerifyMagicLinkConfig{
			Tokens:          s.cfg.Tokens,
			Tx:              s.cfg.Tx,
			Users:           s.cfg.Users,
			Hasher:          s.cfg.Hasher,
			Authenticator:   s.cfg.Authenticator,
			SecureLinks:     s.cfg.SecureLinks,
			Guards:          s.cfg.Guards,
			Events:          s.cfg.Events,
			Secrets:         s.cfg.Secrets,
			Clock:           s.cfg.Clock,
			Logger:          s.cfg.Logger,
			DefaultRedirect: s.cfg.DefaultRedirect,
		}),
		Invalidate: command.NewInvalidateLinksCommand(command.InvalidateLinksConfig{
			Tokens: s.cfg.Tokens,
			Clock:  s.cfg.Clock,
			Logger: s.cfg.Logger,
		}),
		Cleanup: command.NewCleanupCommand(command.CleanupConfig{
			Tokens: s.cfg.Tokens,
			Clock:  s.cfg.Clock,
			Logger: s.cfg.Logger,
		}),
	}
}

func (s *Service) buildQueries() Queries {
	return Queries{
		Stats:             query.NewStatsQuery(s.cfg.Tokens, s.cfg.Clock),
		LinkValidity:      query.NewLinkValidityQuery(s.cfg.Tokens, s.cfg.Clock),
		RemainingAttempts: query.NewRemainingAttemptsQuery(s.cfg.RateLimiter, s.cfg.MaxAttempts),
	}
}
