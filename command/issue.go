package command

import (
	"context"
	"errors"
	"strings"
	"time"

	gocommand "github.com/goliatone/go-command"
	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/google/uuid"
)

const (
	// DefaultLinkExpiration is used when a guard does not override the lifetime.
	DefaultLinkExpiration = 15 * time.Minute
	// DefaultMaxAttempts caps issuance per identifier inside one window.
	DefaultMaxAttempts = 5
	// DefaultDecay is the rate limit window length.
	DefaultDecay = 10 * time.Minute
)

// IssueMagicLinkInput requests a new magic link for an email or phone.
type IssueMagicLinkInput struct {
	Identifier string
	Guard      string
	Attributes map[string]any
	// Channels overrides the delivery channels resolved from the identifier.
	Channels []types.Channel
	Result   *IssueMagicLinkResult
}

// Type implements gocommand.Message.
func (IssueMagicLinkInput) Type() string {
	return "command.magiclink.issue"
}

// Validate implements gocommand.Message.
func (input IssueMagicLinkInput) Validate() error {
	if strings.TrimSpace(input.Identifier) == "" {
		return ErrIdentifierRequired
	}
	if strings.TrimSpace(input.Guard) == "" {
		return ErrGuardRequired
	}
	return nil
}

// IssueMagicLinkResult describes the delivered link.
type IssueMagicLinkResult struct {
	LinkID      uuid.UUID
	Identifier  types.Identifier
	URL         string
	ExpiresAt   time.Time
	Channels    []types.Channel
	Invalidated int
}

// IssueMagicLinkConfig holds dependencies for issuance.
type IssueMagicLinkConfig struct {
	Tokens            types.TokenStore
	Tx                types.TxManager
	RateLimiter       types.RateLimiter
	Dispatcher        types.NotificationDispatcher
	SecureLinks       types.SecureLinkProvider
	Guards            types.Guards
	Events            types.EventPublisher
	FeatureGate       featuregate.FeatureGate
	Secrets           types.SecretGenerator
	Clock             types.Clock
	Logger            types.Logger
	DefaultExpiration time.Duration
	MaxAttempts       int
	Decay             time.Duration
	Route             string
}

// IssueMagicLinkCommand generates, stores and delivers magic links.
type IssueMagicLinkCommand struct {
	tokens      types.TokenStore
	tx          types.TxManager
	limiter     types.RateLimiter
	dispatcher  types.NotificationDispatcher
	links       types.SecureLinkProvider
	guards      types.Guards
	events      types.EventPublisher
	gate        featuregate.FeatureGate
	secrets     types.SecretGenerator
	clock       types.Clock
	logger      types.Logger
	expiration  time.Duration
	maxAttempts int
	decay       time.Duration
	route       string
}

// NewIssueMagicLinkCommand constructs the issuance handler.
func NewIssueMagicLinkCommand(cfg IssueMagicLinkConfig) *IssueMagicLinkCommand {
	expiration := cfg.DefaultExpiration
	if expiration <= 0 {
		expiration = DefaultLinkExpiration
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	decay := cfg.Decay
	if decay <= 0 {
		decay = DefaultDecay
	}
	route := strings.TrimSpace(cfg.Route)
	if route == "" {
		route = SecureLinkRouteVerify
	}
	return &IssueMagicLinkCommand{
		tokens:      cfg.Tokens,
		tx:          cfg.Tx,
		limiter:     cfg.RateLimiter,
		dispatcher:  cfg.Dispatcher,
		links:       cfg.SecureLinks,
		guards:      cfg.Guards,
		events:      safePublisher(cfg.Events),
		gate:        cfg.FeatureGate,
		secrets:     safeSecrets(cfg.Secrets),
		clock:       safeClock(cfg.Clock),
		logger:      safeLogger(cfg.Logger),
		expiration:  expiration,
		maxAttempts: maxAttempts,
		decay:       decay,
		route:       route,
	}
}

var _ gocommand.Commander[IssueMagicLinkInput] = (*IssueMagicLinkCommand)(nil)

// Execute issues a link, replacing any redeemable link for the same
// identifier and guard, and delivers it. Rate limit attempts are only
// recorded after a successful delivery.
func (c *IssueMagicLinkCommand) Execute(ctx context.Context, input IssueMagicLinkInput) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := input.Validate(); err != nil {
		return err
	}
	guard, ok := c.guards.Lookup(input.Guard)
	if !ok {
		return types.ErrUnknownGuard
	}
	enabled, err := featureEnabled(ctx, c.gate, featureMagicLinkIssue)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrMagicLinkDisabled
	}
	identifier, err := types.ParseIdentifier(input.Identifier)
	if err != nil {
		return err
	}

	key := types.RateLimitKey(identifier)
	limited, err := c.limiter.TooManyAttempts(ctx, key, c.maxAttempts)
	if err != nil {
		return err
	}
	if limited {
		retryAfter, err := c.limiter.AvailableIn(ctx, key)
		if err != nil {
			return err
		}
		return &types.RateLimitError{RetryAfter: retryAfter}
	}

	manager, err := c.links.ManagerFor(guard.Name)
	if err != nil {
		return err
	}
	secret, err := c.secrets.Secret()
	if err != nil {
		return err
	}

	issuedAt := now(c.clock)
	var (
		created     *types.MagicLink
		invalidated int
	)
	err = c.tx.RunInTx(ctx, func(ctx context.Context) error {
		count, err := c.tokens.InvalidateRedeemable(ctx, identifier, guard.Name, issuedAt)
		if err != nil {
			return err
		}
		invalidated = count
		created, err = c.tokens.Create(ctx, types.MagicLink{
			Identifier: identifier,
			Secret:     secret,
			Guard:      guard.Name,
			Attributes: cloneMap(input.Attributes),
			ExpiresAt:  issuedAt.Add(guard.ExpirationOr(c.expiration)),
		})
		return err
	})
	if err != nil {
		return err
	}

	url, err := manager.Generate(c.route, newLinkPayload(*created).encode())
	if err != nil {
		c.failClosed(ctx, created.ID)
		return err
	}

	event := types.Event{
		Identifier: identifier,
		Guard:      guard.Name,
		LinkID:     created.ID,
		OccurredAt: issuedAt,
	}
	generating := event
	generating.Type = types.EventGenerating
	emit(ctx, c.events, generating)

	channels, err := c.dispatcher.Dispatch(ctx, types.LinkNotification{
		Identifier: identifier,
		Guard:      guard.Name,
		URL:        url,
		ExpiresAt:  created.ExpiresAt,
		Channels:   input.Channels,
	})
	if err != nil {
		c.failClosed(ctx, created.ID)
		failed := event
		failed.Type = types.EventFailed
		failed.Err = err
		failed.Channels = channels
		failed.OccurredAt = now(c.clock)
		emit(ctx, c.events, failed)

		var deliveryErr *types.DeliveryError
		if !errors.As(err, &deliveryErr) {
			err = &types.DeliveryError{Err: err}
		}
		return err
	}

	sent := event
	sent.Type = types.EventSent
	sent.Channels = channels
	sent.OccurredAt = now(c.clock)
	emit(ctx, c.events, sent)

	if _, err := c.limiter.Hit(ctx, key, c.decay); err != nil {
		c.logger.Error("magiclink: rate limit hit failed", err, "guard", guard.Name)
	}

	if input.Result != nil {
		*input.Result = IssueMagicLinkResult{
			LinkID:      created.ID,
			Identifier:  identifier,
			URL:         url,
			ExpiresAt:   created.ExpiresAt,
			Channels:    channels,
			Invalidated: invalidated,
		}
	}
	return nil
}

func (c *IssueMagicLinkCommand) ready() error {
	switch {
	case c.tokens == nil:
		return types.ErrMissingTokenStore
	case c.tx == nil:
		return types.ErrMissingTxManager
	case c.limiter == nil:
		return types.ErrMissingRateLimiter
	case c.dispatcher == nil:
		return types.ErrMissingDispatcher
	case c.links == nil:
		return types.ErrMissingSecureLinks
	}
	return nil
}

// failClosed burns a link that never reached its recipient. The invalidation
// of earlier links stays in place.
func (c *IssueMagicLinkCommand) failClosed(ctx context.Context, id uuid.UUID) {
	if err := c.tokens.MarkUsed(ctx, id); err != nil {
		c.logger.Error("magiclink: mark undelivered link used", err, "link_id", id.String())
	}
}
