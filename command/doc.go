// Package command exposes go-command compatible command handlers implementing
// the magic link lifecycle (issuance, redemption, invalidation and cleanup).
// Commands are wired by the service layer and can be invoked by any transport.
package command
