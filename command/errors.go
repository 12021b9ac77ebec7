package command

import (
	"errors"

	"github.com/goliatone/go-magiclink/pkg/types"
)

const textCodeVerificationTxFailed = "VERIFICATION_TRANSACTION_FAILED"

var (
	// ErrMagicLinkDisabled indicates issuance is disabled via feature gate.
	ErrMagicLinkDisabled = errors.New("magiclink: issuance disabled")
	// ErrIdentifierRequired indicates the email or phone was omitted.
	ErrIdentifierRequired = types.ErrIdentifierRequired
	// ErrGuardRequired indicates the guard name was omitted.
	ErrGuardRequired = types.ErrGuardRequired
	// ErrTokenRequired indicates the signed link token was omitted.
	ErrTokenRequired = types.ErrTokenRequired
)
