// Package magiclink issues and redeems single-use, time-limited login links.
// The service subpackage holds the facade; this package re-exports it for
// hosts that only need the public operations.
package magiclink

import "github.com/goliatone/go-magiclink/service"

type (
	// Service exposes sendMagicLink, verifyAndLogin and the bulk operations.
	Service = service.Service
	// Config wires the service collaborators.
	Config = service.Config
	// SendRequest describes a link issuance.
	SendRequest = service.SendRequest
)

// New constructs the magic link service.
func New(cfg Config) *Service {
	return service.New(cfg)
}
