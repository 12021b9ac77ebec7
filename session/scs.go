// Package session establishes logins in an scs session once a magic link is
// redeemed.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/goliatone/go-magiclink/pkg/types"
)

// ErrNoSession is returned when ctx was not loaded by the session middleware.
var ErrNoSession = errors.New("session: no session data in context")

// DefaultKeySuffix is appended to the guard name to form the session key.
const DefaultKeySuffix = "_user_id"

// Authenticator implements types.SessionAuthenticator over scs.
type Authenticator struct {
	manager *scs.SessionManager
	suffix  string
}

// NewAuthenticator wraps manager.
func NewAuthenticator(manager *scs.SessionManager) (*Authenticator, error) {
	if manager == nil {
		return nil, errors.New("session: manager required")
	}
	return &Authenticator{manager: manager, suffix: DefaultKeySuffix}, nil
}

var _ types.SessionAuthenticator = (*Authenticator)(nil)

// Login renews the session token to prevent fixation and stores the user id
// under the guard key.
func (a *Authenticator) Login(ctx context.Context, guard string, user types.User) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNoSession, r)
		}
	}()
	if err := a.manager.RenewToken(ctx); err != nil {
		return err
	}
	a.manager.Put(ctx, a.Key(guard), user.ID.String())
	return nil
}

// UserID returns the id logged in under guard, or an empty string.
func (a *Authenticator) UserID(ctx context.Context, guard string) (id string) {
	defer func() {
		if recover() != nil {
			id = ""
		}
	}()
	return a.manager.GetString(ctx, a.Key(guard))
}

// Key is the session key holding the user id for guard.
func (a *Authenticator) Key(guard string) string {
	return strings.TrimSpace(guard) + a.suffix
}
