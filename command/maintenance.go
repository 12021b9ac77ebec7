package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-magiclink/pkg/types"
)

// InvalidateLinksInput burns every redeemable link for an identifier.
type InvalidateLinksInput struct {
	Identifier string
	// Guard limits invalidation to one guard when set.
	Guard  string
	Result *int
}

// Type implements gocommand.Message.
func (InvalidateLinksInput) Type() string {
	return "command.magiclink.invalidate"
}

// Validate implements gocommand.Message.
func (input InvalidateLinksInput) Validate() error {
	if strings.TrimSpace(input.Identifier) == "" {
		return ErrIdentifierRequired
	}
	return nil
}

// InvalidateLinksConfig holds dependencies for bulk invalidation.
type InvalidateLinksConfig struct {
	Tokens types.TokenStore
	Clock  types.Clock
	Logger types.Logger
}

// InvalidateLinksCommand marks redeemable links used.
type InvalidateLinksCommand struct {
	tokens types.TokenStore
	clock  types.Clock
	logger types.Logger
}

// NewInvalidateLinksCommand constructs the invalidation handler.
func NewInvalidateLinksCommand(cfg InvalidateLinksConfig) *InvalidateLinksCommand {
	return &InvalidateLinksCommand{
		tokens: cfg.Tokens,
		clock:  safeClock(cfg.Clock),
		logger: safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[InvalidateLinksInput] = (*InvalidateLinksCommand)(nil)

// Execute invalidates the links and stores the affected count in Result.
func (c *InvalidateLinksCommand) Execute(ctx context.Context, input InvalidateLinksInput) error {
	if c.tokens == nil {
		return types.ErrMissingTokenStore
	}
	if err := input.Validate(); err != nil {
		return err
	}
	identifier, err := types.ParseIdentifier(input.Identifier)
	if err != nil {
		return err
	}
	guard := strings.TrimSpace(input.Guard)
	count, err := c.tokens.InvalidateRedeemable(ctx, identifier, guard, now(c.clock))
	if err != nil {
		return err
	}
	c.logger.Info("magiclink: links invalidated", "guard", guard, "count", count)
	if input.Result != nil {
		*input.Result = count
	}
	return nil
}

// CleanupInput removes expired links.
type CleanupInput struct {
	Result *int
}

// Type implements gocommand.Message.
func (CleanupInput) Type() string {
	return "command.magiclink.cleanup"
}

// Validate implements gocommand.Message.
func (CleanupInput) Validate() error {
	return nil
}

// CleanupConfig holds dependencies for expired link cleanup.
type CleanupConfig struct {
	Tokens types.TokenStore
	Clock  types.Clock
	Logger types.Logger
}

// CleanupCommand deletes links whose deadline passed.
type CleanupCommand struct {
	tokens types.TokenStore
	clock  types.Clock
	logger types.Logger
}

// NewCleanupCommand constructs the cleanup handler.
func NewCleanupCommand(cfg CleanupConfig) *CleanupCommand {
	return &CleanupCommand{
		tokens: cfg.Tokens,
		clock:  safeClock(cfg.Clock),
		logger: safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[CleanupInput] = (*CleanupCommand)(nil)

// Execute deletes expired links. Used links that have not expired are kept.
func (c *CleanupCommand) Execute(ctx context.Context, input CleanupInput) error {
	if c.tokens == nil {
		return types.ErrMissingTokenStore
	}
	count, err := c.tokens.DeleteExpired(ctx, now(c.clock))
	if err != nil {
		return err
	}
	c.logger.Info("magiclink: expired links removed", "count", count)
	if input.Result != nil {
		*input.Result = count
	}
	return nil
}
