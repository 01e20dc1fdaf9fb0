// Package authprovider defines the hosted auth service the site signs users in with.
package authprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonkersai/website/sessions"
)

// Provider is implemented by gotrue (hosted auth REST API), oidcpassword
// (OAuth2 password grant) and repofake (tests).
type Provider interface {
	// PasswordSignIn exchanges email and password for a session.
	PasswordSignIn(ctx context.Context, email, password string) (*sessions.Session, error)

	// SignOut ends the current session.
	SignOut(ctx context.Context) error

	// CurrentSession returns the live session, or nil when signed out.
	CurrentSession(ctx context.Context) (*sessions.Session, error)

	// Subscribe delivers session changes until the subscription is cancelled.
	Subscribe() *sessions.Subscription
}

// Revoker is implemented by providers that can end a session other than
// their current one, such as one kept in a server-side login session.
type Revoker interface {
	Revoke(ctx context.Context, s *sessions.Session) error
}

// AutoRefresher is implemented by providers that renew their session in the
// background. AutoRefresh blocks until ctx is done and reports renewals and
// failed renewals as session change events.
type AutoRefresher interface {
	AutoRefresh(ctx context.Context)
}

var (
	// ErrInvalidGrant is returned when the provider rejects the credentials.
	ErrInvalidGrant = errors.New("invalid login credentials")
	// ErrNoSession is returned when no session is available to act on.
	ErrNoSession = errors.New("no active session")
)

// Error is a failure reported by the provider API.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth provider: %s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("auth provider: %s (status %d)", e.Message, e.Status)
}

// Is makes rejected credentials match ErrInvalidGrant.
func (e *Error) Is(target error) bool {
	return target == ErrInvalidGrant && (e.Code == "invalid_grant" || e.Code == "invalid_credentials")
}
