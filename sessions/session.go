package sessions

import (
	"time"

	"github.com/jonkersai/website/users"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
)

const (
	// TokenTypeBearer is the only token type issued.
	TokenTypeBearer = "bearer"

	// SynthesizedTokenPrefix marks access tokens created locally rather than by the auth provider.
	SynthesizedTokenPrefix = "custom_auth_"

	// SynthesizedTTL is the lifetime of a synthesized session.
	SynthesizedTTL = 3600 * time.Second

	synthesizedSuffixLength = 21
)

// Session is a live authentication grant for exactly one identity.
type Session struct {
	AccessToken  string         `json:"access_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int            `json:"expires_in"` // seconds
	ExpiresAt    time.Time      `json:"expires_at"`
	RefreshToken string         `json:"refresh_token"`
	User         users.Identity `json:"user"`
	Synthesized  bool           `json:"synthesized,omitempty"` // created locally, the provider knows nothing of it
}

// Expired reports whether the session is past its expiry at now. Sessions
// without an expiry never expire.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone returns a copy that shares nothing with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Synthesize builds a local session for an identity whose fallback credentials
// validated but which the auth provider rejected. The refresh token is empty.
func Synthesize(userID, email string, now time.Time) (*Session, error) {
	suffix, err := gonanoid.New(synthesizedSuffixLength)
	if err != nil {
		return nil, errors.Wrap(err, "[Synthesize] token suffix")
	}
	return &Session{
		AccessToken:  SynthesizedTokenPrefix + suffix,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int(SynthesizedTTL / time.Second),
		ExpiresAt:    now.Add(SynthesizedTTL),
		RefreshToken: "",
		User:         users.Identity{ID: userID, Email: email},
		Synthesized:  true,
	}, nil
}
