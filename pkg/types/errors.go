package types

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownGuard indicates the guard is not configured.
	ErrUnknownGuard = errors.New("magiclink: unknown guard")
	// ErrGuardRequired indicates the guard name was omitted.
	ErrGuardRequired = errors.New("magiclink: guard required")
	// ErrIdentifierRequired indicates the email or phone was omitted.
	ErrIdentifierRequired = errors.New("magiclink: identifier required")
	// ErrTokenRequired indicates the signed link token was omitted.
	ErrTokenRequired = errors.New("magiclink: token required")
	// ErrDeliveryFailed indicates no channel accepted the notification.
	ErrDeliveryFailed = errors.New("magiclink: delivery failed")
	// ErrNoDeliveryChannel indicates channel resolution produced nothing usable.
	ErrNoDeliveryChannel = errors.New("magiclink: no delivery channel available")
	// ErrUserExists indicates another writer created the user first.
	ErrUserExists = errors.New("magiclink: user already exists")
	// ErrLinkNotRedeemable indicates a conditional update matched no row.
	ErrLinkNotRedeemable = errors.New("magiclink: link not redeemable")
	// ErrServiceNotReady indicates required dependencies are missing.
	ErrServiceNotReady = errors.New("magiclink: service not ready")
	// ErrMissingTokenStore indicates no TokenStore was wired.
	ErrMissingTokenStore = errors.New("magiclink: missing token store")
	// ErrMissingTxManager indicates no TxManager was wired.
	ErrMissingTxManager = errors.New("magiclink: missing transaction manager")
	// ErrMissingRateLimiter indicates no RateLimiter was wired.
	ErrMissingRateLimiter = errors.New("magiclink: missing rate limiter")
	// ErrMissingDispatcher indicates no NotificationDispatcher was wired.
	ErrMissingDispatcher = errors.New("magiclink: missing notification dispatcher")
	// ErrMissingUserRepository indicates no UserRepository was wired.
	ErrMissingUserRepository = errors.New("magiclink: missing user repository")
	// ErrMissingSecureLinks indicates no securelink managers were wired.
	ErrMissingSecureLinks = errors.New("magiclink: missing securelink manager")
	// ErrMissingAuthenticator indicates no SessionAuthenticator was wired.
	ErrMissingAuthenticator = errors.New("magiclink: missing session authenticator")
	// ErrMissingPasswordHasher indicates no PasswordHasher was wired.
	ErrMissingPasswordHasher = errors.New("magiclink: missing password hasher")
)

// DeliveryError wraps the transport failure for a channel. It matches
// ErrDeliveryFailed with errors.Is.
type DeliveryError struct {
	Channel Channel
	Err     error
}

func (e *DeliveryError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("%s: %v", ErrDeliveryFailed, e.Err)
	}
	return fmt.Sprintf("%s via %s: %v", ErrDeliveryFailed, e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is reports ErrDeliveryFailed equivalence.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailed
}
