package command

import (
	"context"
	"errors"
	"strings"

	gocommand "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/google/uuid"
)

// DefaultRedirect is used when a guard has no success redirect.
const DefaultRedirect = "/"

// Rejection reasons reported on failed verifications.
const (
	ReasonInvalidSignature = "invalid_signature"
	ReasonGuardMismatch    = "guard_mismatch"
	ReasonExpired          = "expired"
	ReasonNotRedeemable    = "not_redeemable"
)

// VerifyMagicLinkInput redeems a signed link token for a guard.
type VerifyMagicLinkInput struct {
	Token  string
	Guard  string
	Result *VerifyMagicLinkResult
}

// Type implements gocommand.Message.
func (VerifyMagicLinkInput) Type() string {
	return "command.magiclink.verify"
}

// Validate implements gocommand.Message.
func (input VerifyMagicLinkInput) Validate() error {
	if strings.TrimSpace(input.Token) == "" {
		return ErrTokenRequired
	}
	if strings.TrimSpace(input.Guard) == "" {
		return ErrGuardRequired
	}
	return nil
}

// VerifyMagicLinkResult reports the redemption outcome. An invalid link is a
// result, not an error.
type VerifyMagicLinkResult struct {
	Valid      bool
	Reason     string
	RedirectTo string
	LinkID     uuid.UUID
	User       *types.User
}

// VerifyMagicLinkConfig holds dependencies for redemption.
type VerifyMagicLinkConfig struct {
	Tokens          types.TokenStore
	Tx              types.TxManager
	Users           types.UserRepository
	Hasher          types.PasswordHasher
	Authenticator   types.SessionAuthenticator
	SecureLinks     types.SecureLinkProvider
	Guards          types.Guards
	Events          types.EventPublisher
	Secrets         types.SecretGenerator
	Clock           types.Clock
	Logger          types.Logger
	DefaultRedirect string
}

// VerifyMagicLinkCommand consumes a link, upserts its user and logs them in.
type VerifyMagicLinkCommand struct {
	tokens   types.TokenStore
	tx       types.TxManager
	users    types.UserRepository
	hasher   types.PasswordHasher
	auth     types.SessionAuthenticator
	links    types.SecureLinkProvider
	guards   types.Guards
	events   types.EventPublisher
	secrets  types.SecretGenerator
	clock    types.Clock
	logger   types.Logger
	redirect string
}

// NewVerifyMagicLinkCommand constructs the redemption handler.
func NewVerifyMagicLinkCommand(cfg VerifyMagicLinkConfig) *VerifyMagicLinkCommand {
	redirect := strings.TrimSpace(cfg.DefaultRedirect)
	if redirect == "" {
		redirect = DefaultRedirect
	}
	return &VerifyMagicLinkCommand{
		tokens:   cfg.Tokens,
		tx:       cfg.Tx,
		users:    cfg.Users,
		hasher:   cfg.Hasher,
		auth:     cfg.Authenticator,
		links:    cfg.SecureLinks,
		guards:   cfg.Guards,
		events:   safePublisher(cfg.Events),
		secrets:  safeSecrets(cfg.Secrets),
		clock:    safeClock(cfg.Clock),
		logger:   safeLogger(cfg.Logger),
		redirect: redirect,
	}
}

var _ gocommand.Commander[VerifyMagicLinkInput] = (*VerifyMagicLinkCommand)(nil)

// Execute validates the signed token, consumes the stored link exactly once
// and establishes the session. The consume, user upsert and login share one
// transaction.
func (c *VerifyMagicLinkCommand) Execute(ctx context.Context, input VerifyMagicLinkInput) error {
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
	manager, err := c.links.ManagerFor(guard.Name)
	if err != nil {
		return err
	}

	at := now(c.clock)
	decoded, err := manager.Validate(strings.TrimSpace(input.Token))
	if err != nil {
		c.reject(ctx, input, guard.Name, nil, ReasonInvalidSignature)
		return nil
	}
	payload := decodeLinkPayload(decoded)
	if payload.Action != SecureLinkActionLogin || payload.Secret == "" {
		c.reject(ctx, input, guard.Name, nil, ReasonInvalidSignature)
		return nil
	}
	if payload.Guard != guard.Name {
		c.reject(ctx, input, guard.Name, nil, ReasonGuardMismatch)
		return nil
	}
	if payload.expired(at) {
		c.reject(ctx, input, guard.Name, nil, ReasonExpired)
		return nil
	}

	link, err := c.tokens.FindRedeemable(ctx, payload.Secret, guard.Name, at)
	if err != nil {
		return c.failure(ctx, guard.Name, nil, err)
	}
	if link == nil {
		c.reject(ctx, input, guard.Name, nil, ReasonNotRedeemable)
		return nil
	}

	var (
		user     *types.User
		lostRace bool
	)
	err = c.tx.RunInTx(ctx, func(ctx context.Context) error {
		emit(ctx, c.events, types.Event{
			Type:       types.EventVerificationStarted,
			Identifier: link.Identifier,
			Guard:      guard.Name,
			LinkID:     link.ID,
			OccurredAt: at,
		})
		if err := c.tokens.Consume(ctx, link.ID, at); err != nil {
			lostRace = errors.Is(err, types.ErrLinkNotRedeemable)
			return err
		}
		upserted, err := c.upsertUser(ctx, *link, at)
		if err != nil {
			return err
		}
		user = upserted
		return c.auth.Login(ctx, guard.Name, *upserted)
	})
	if err != nil {
		if lostRace {
			c.reject(ctx, input, guard.Name, link, ReasonNotRedeemable)
			return nil
		}
		return c.failure(ctx, guard.Name, link, err)
	}

	emit(ctx, c.events, types.Event{
		Type:       types.EventVerificationCompleted,
		Identifier: link.Identifier,
		Guard:      guard.Name,
		LinkID:     link.ID,
		UserID:     user.ID,
		OccurredAt: now(c.clock),
	})

	if input.Result != nil {
		redirect := strings.TrimSpace(guard.RedirectOnSuccess)
		if redirect == "" {
			redirect = c.redirect
		}
		*input.Result = VerifyMagicLinkResult{
			Valid:      true,
			RedirectTo: redirect,
			LinkID:     link.ID,
			User:       user,
		}
	}
	return nil
}

func (c *VerifyMagicLinkCommand) ready() error {
	switch {
	case c.tokens == nil:
		return types.ErrMissingTokenStore
	case c.tx == nil:
		return types.ErrMissingTxManager
	case c.users == nil:
		return types.ErrMissingUserRepository
	case c.hasher == nil:
		return types.ErrMissingPasswordHasher
	case c.auth == nil:
		return types.ErrMissingAuthenticator
	case c.links == nil:
		return types.ErrMissingSecureLinks
	}
	return nil
}

func (c *VerifyMagicLinkCommand) reject(ctx context.Context, input VerifyMagicLinkInput, guard string, link *types.MagicLink, reason string) {
	event := types.Event{
		Type:       types.EventVerificationFailed,
		Guard:      guard,
		Reason:     reason,
		OccurredAt: now(c.clock),
	}
	if link != nil {
		event.Identifier = link.Identifier
		event.LinkID = link.ID
	}
	emit(ctx, c.events, event)
	if input.Result != nil {
		*input.Result = VerifyMagicLinkResult{Reason: reason}
	}
}

func (c *VerifyMagicLinkCommand) failure(ctx context.Context, guard string, link *types.MagicLink, err error) error {
	event := types.Event{
		Type:       types.EventVerificationError,
		Guard:      guard,
		Err:        err,
		OccurredAt: now(c.clock),
	}
	if link != nil {
		event.Identifier = link.Identifier
		event.LinkID = link.ID
	}
	emit(ctx, c.events, event)
	c.logger.Error("magiclink: verification transaction failed", err, "guard", guard)
	return goerrors.Wrap(err, goerrors.CategoryInternal, "magiclink: verification failed").
		WithCode(goerrors.CodeInternal).
		WithTextCode(textCodeVerificationTxFailed)
}
