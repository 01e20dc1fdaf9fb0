// Package loginsession stores the server-side half of a browser login. The
// browser only holds the session id in an HttpOnly cookie.
package loginsession

import (
	"context"
	"time"

	"github.com/jonkersai/website/recordstore"
	"github.com/jonkersai/website/sessions"
	"github.com/jonkersai/website/users"
)

type Session struct {
	// Core identity
	UserID string `json:"user_id"`
	Email  string `json:"email"`

	// Derived at sign-in, refreshed by the session endpoint
	IsAdmin bool `json:"is_admin"`

	// Provider tokens, forwarded to the record store on admin requests
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Synthesized  bool   `json:"synthesized,omitempty"`

	// Session management
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// FromSession builds a login session for s that ends at expiresAt.
func FromSession(s *sessions.Session, isAdmin bool, now, expiresAt time.Time) Session {
	return Session{
		UserID:       s.User.ID,
		Email:        s.User.Email,
		IsAdmin:      isAdmin,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Synthesized:  s.Synthesized,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
	}
}

func (s Session) Identity() users.Identity {
	return users.Identity{ID: s.UserID, Email: s.Email}
}

// Caller is the record store caller for s. Synthesized tokens are not JWTs
// the hosted store would accept, so they are left off and the store key is
// used as bearer instead.
func (s Session) Caller() recordstore.Caller {
	c := recordstore.Caller{UserID: s.UserID, Email: s.Email}
	if !s.Synthesized {
		c.AccessToken = s.AccessToken
	}
	return c
}

// Expired reports whether the session has ended at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Repo implementations return internal/errors.ErrSessionNotFound for unknown
// ids and ErrSessionExpired for sessions past their ExpiresAt.
type Repo interface {
	Upsert(ctx context.Context, sessionID string, session Session) error
	Get(ctx context.Context, sessionID string) (Session, error)
	Delete(ctx context.Context, sessionID string) error
}
