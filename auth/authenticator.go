// Package auth signs users in against the auth provider with a fallback to the
// credentials table, derives admin status and tracks the signed-in state.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonkersai/website/authprovider"
	"github.com/jonkersai/website/recordstore"
	"github.com/jonkersai/website/sessions"
	"github.com/jonkersai/website/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Password storage modes for UpdatePassword.
const (
	// PasswordStorageLegacy writes the new password verbatim to both password
	// columns, matching the hosted check_credentials procedure. Plaintext at rest.
	PasswordStorageLegacy = "legacy"
	// PasswordStorageBcrypt writes a bcrypt hash to both columns.
	PasswordStorageBcrypt = "bcrypt"
)

// Repos holds the collaborators of the Authenticator.
type Repos struct {
	Provider    authprovider.Provider // primary sign-in
	Credentials users.CredentialRepo  // fallback credentials table
	Store       recordstore.Store     // is_admin procedure
}

// Result is the outcome of a successful sign-in.
type Result struct {
	Identity users.Identity
	Session  *sessions.Session
	IsAdmin  bool
}

// Authenticator implements sign-in, admin derivation and password change. It
// holds no per-user state and is safe for concurrent use.
type Authenticator struct {
	repos           Repos
	adminDomain     string
	passwordStorage string
	logger          zerolog.Logger
	nowTime         func() time.Time
	adminChecks     singleflight.Group
}

// AuthenticatorOption defines a function type to modify the Authenticator instance.
type AuthenticatorOption func(*Authenticator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		a.nowTime = nowFunc
	}
}

// WithAdminDomain sets the email suffix that grants admin without a lookup.
func WithAdminDomain(suffix string) AuthenticatorOption {
	return func(a *Authenticator) {
		a.adminDomain = suffix
	}
}

// WithPasswordStorage selects PasswordStorageLegacy or PasswordStorageBcrypt.
func WithPasswordStorage(mode string) AuthenticatorOption {
	return func(a *Authenticator) {
		a.passwordStorage = mode
	}
}

// WithLogger sets the logger used for sign-in and admin check diagnostics.
func WithLogger(l zerolog.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		a.logger = l
	}
}

// NewAuthenticator validates the repos and applies options.
func NewAuthenticator(repos Repos, options ...AuthenticatorOption) (*Authenticator, error) {
	if repos.Provider == nil {
		return nil, errors.New("[NewAuthenticator] Provider is required")
	}
	if repos.Credentials == nil {
		return nil, errors.New("[NewAuthenticator] Credentials repo is required")
	}
	if repos.Store == nil {
		return nil, errors.New("[NewAuthenticator] Store is required")
	}

	a := &Authenticator{
		repos:           repos,
		adminDomain:     users.DefaultAdminDomain,
		passwordStorage: PasswordStorageLegacy,
		logger:          log.Logger,
		nowTime:         time.Now,
	}
	for _, opt := range options {
		opt(a)
	}

	switch a.passwordStorage {
	case PasswordStorageLegacy, PasswordStorageBcrypt:
	default:
		return nil, errors.Errorf("[NewAuthenticator] unknown password storage %q", a.passwordStorage)
	}
	return a, nil
}

// Provider returns the auth provider the Authenticator signs in with.
func (a *Authenticator) Provider() authprovider.Provider {
	return a.repos.Provider
}

// SignIn tries the auth provider first. When it fails for any reason the
// credentials table is consulted; a matching record gets one more provider
// attempt and otherwise a locally synthesized session.
func (a *Authenticator) SignIn(ctx context.Context, email, password string) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Str("email", email).Interface("panic", r).Msg("Sign-in panicked")
			res, err = nil, newError(KindUnexpected, fmt.Errorf("panic: %v", r))
		}
	}()

	session, primaryErr := a.repos.Provider.PasswordSignIn(ctx, email, password)
	if primaryErr == nil && session != nil {
		identity := session.User
		return &Result{
			Identity: identity,
			Session:  session,
			IsAdmin:  a.CheckAdminStatus(withSession(ctx, session), &identity),
		}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(KindUnexpected, err)
	}
	a.logger.Debug().Err(primaryErr).Str("email", email).Msg("Primary sign-in failed, trying credentials table")

	match, err := a.repos.Credentials.Check(ctx, email, password)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, newError(KindUnexpected, ctxErr)
	}
	if err != nil {
		a.logger.Err(err).Str("email", email).Msg("Credential check failed")
		return nil, newError(KindInvalidCredentials, err)
	}
	if match == nil {
		return nil, newError(KindInvalidCredentials, primaryErr)
	}

	session, retryErr := a.repos.Provider.PasswordSignIn(ctx, email, password)
	if retryErr == nil && session != nil {
		return &Result{Identity: session.User, Session: session, IsAdmin: match.IsAdmin}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(KindUnexpected, err)
	}

	session, err = sessions.Synthesize(match.UserID, email, a.nowTime())
	if err != nil {
		return nil, newError(KindUnexpected, err)
	}
	a.logger.Info().Str("email", email).Str("user_id", match.UserID).Msg("Signed in with synthesized session")
	return &Result{Identity: session.User, Session: session, IsAdmin: match.IsAdmin}, nil
}

// CheckAdminStatus derives admin status from the email domain, then the
// credentials table, then the is_admin procedure. Lookup failures are logged
// and count as not admin.
func (a *Authenticator) CheckAdminStatus(ctx context.Context, identity *users.Identity) bool {
	if identity == nil {
		return false
	}
	if identity.HasDomain(a.adminDomain) {
		return true
	}
	if _, ok := recordstore.CallerFromContext(ctx); !ok {
		ctx = recordstore.WithCaller(ctx, recordstore.Caller{UserID: identity.ID, Email: identity.Email})
	}

	key := identity.ID + "\x00" + strings.ToLower(identity.Email)
	ch := a.adminChecks.DoChan(key, func() (any, error) {
		return a.lookupAdmin(context.WithoutCancel(ctx), identity), nil
	})
	select {
	case <-ctx.Done():
		return false
	case r := <-ch:
		isAdmin, _ := r.Val.(bool)
		return isAdmin
	}
}

func (a *Authenticator) lookupAdmin(ctx context.Context, identity *users.Identity) bool {
	rec, err := a.repos.Credentials.GetByEmail(ctx, identity.Email)
	switch {
	case err == nil && rec.IsAdmin:
		return true
	case err != nil && !errors.Is(err, recordstore.ErrNoRows):
		a.logger.Err(err).Str("email", identity.Email).Msg("Admin lookup in credentials table failed")
	}

	isAdmin, err := recordstore.IsAdmin(ctx, a.repos.Store)
	if err != nil {
		a.logger.Err(err).Str("email", identity.Email).Msg("is_admin procedure failed")
		return false
	}
	return isAdmin
}

// SignOut ends the provider session. Provider errors are logged only; the
// caller's local state must be cleared regardless.
func (a *Authenticator) SignOut(ctx context.Context) {
	if err := a.repos.Provider.SignOut(ctx); err != nil {
		a.logger.Err(err).Msg("Provider sign-out failed")
	}
}

// UpdatePassword verifies current with a full sign-in, then rewrites the
// password columns of the credentials record for email. The provider's own
// credential is left unchanged.
func (a *Authenticator) UpdatePassword(ctx context.Context, email, current, newPassword string) error {
	if _, err := a.SignIn(ctx, email, current); err != nil {
		if KindOf(err) == KindUnexpected {
			return err
		}
		return newError(KindIncorrectCurrentPassword, err)
	}
	if newPassword == "" {
		return newError(KindPasswordUpdateFailed, errors.New("new password is empty"))
	}

	stored := newPassword
	if a.passwordStorage == PasswordStorageBcrypt {
		hash, err := users.HashPassword(newPassword)
		if err != nil {
			return newError(KindPasswordUpdateFailed, err)
		}
		stored = hash
	}
	if err := a.repos.Credentials.SetPassword(ctx, email, stored, stored); err != nil {
		a.logger.Err(err).Str("email", email).Msg("Password update failed")
		return newError(KindPasswordUpdateFailed, err)
	}
	return nil
}

// withSession attaches the caller of s. Synthesized tokens never reach the store.
func withSession(ctx context.Context, s *sessions.Session) context.Context {
	c := recordstore.Caller{UserID: s.User.ID, Email: s.User.Email}
	if !s.Synthesized {
		c.AccessToken = s.AccessToken
	}
	return recordstore.WithCaller(ctx, c)
}
