// Package oidcpassword signs users in with the OAuth2 resource owner password
// grant against an OpenID Connect issuer and verifies the returned ID token.
package oidcpassword

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jonkersai/website/authprovider"
	"github.com/jonkersai/website/sessions"
	"github.com/jonkersai/website/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var _ authprovider.Provider = (*Provider)(nil)

type Provider struct {
	oauth2Config  *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	revocationURL string
	httpClient    *http.Client
	nowTime       func() time.Time

	lock    sync.Mutex
	current *sessions.Session
	token   *oauth2.Token
	events  *sessions.Broadcaster
}

type ProviderOption func(*Provider)

func WithHTTPClient(hc *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

// New discovers the issuer's endpoints and returns a provider for clientID.
func New(ctx context.Context, issuer, clientID, clientSecret string, options ...ProviderOption) (*Provider, error) {
	if issuer == "" || clientID == "" {
		return nil, errors.New("[oidcpassword.New] issuer and client id are required")
	}
	p := &Provider{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		nowTime:    time.Now,
		events:     sessions.NewBroadcaster(),
	}
	for _, opt := range options {
		opt(p)
	}

	ctx = oidc.ClientContext(ctx, p.httpClient)
	op, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.Wrapf(err, "[oidcpassword.New] discovery for %s", issuer)
	}

	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := op.Claims(&extra); err != nil {
		return nil, errors.Wrap(err, "[oidcpassword.New] read provider metadata")
	}

	p.revocationURL = extra.RevocationEndpoint
	p.oauth2Config = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     op.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess},
	}
	p.verifier = op.Verifier(&oidc.Config{
		ClientID: clientID,
		Now:      func() time.Time { return p.nowTime() },
	})
	return p, nil
}

func (p *Provider) PasswordSignIn(ctx context.Context, email, password string) (*sessions.Session, error) {
	tok, err := p.oauth2Config.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		return nil, convertTokenError(err)
	}
	s, err := p.sessionFrom(ctx, tok)
	if err != nil {
		return nil, err
	}
	p.setSession(s, tok, sessions.EventSignedIn)
	return s.Clone(), nil
}

// SignOut revokes the refresh and access tokens when the issuer advertises a
// revocation endpoint. The local session is always cleared.
func (p *Provider) SignOut(ctx context.Context) error {
	p.lock.Lock()
	tok := p.token
	p.lock.Unlock()

	if tok != nil && p.revocationURL != "" {
		if tok.RefreshToken != "" {
			p.revokeToken(ctx, tok.RefreshToken, "refresh_token")
		}
		if tok.AccessToken != "" {
			p.revokeToken(ctx, tok.AccessToken, "access_token")
		}
	}
	p.setSession(nil, nil, sessions.EventSignedOut)
	return nil
}

// Revoke revokes the tokens of s without touching the provider's own session.
func (p *Provider) Revoke(ctx context.Context, s *sessions.Session) error {
	if s == nil || s.Synthesized || p.revocationURL == "" {
		return nil
	}
	if s.RefreshToken != "" {
		p.revokeToken(ctx, s.RefreshToken, "refresh_token")
	}
	if s.AccessToken != "" {
		p.revokeToken(ctx, s.AccessToken, "access_token")
	}
	return nil
}

// CurrentSession returns the live session, refreshing it through the token
// endpoint once expired.
func (p *Provider) CurrentSession(ctx context.Context) (*sessions.Session, error) {
	p.lock.Lock()
	current, tok := p.current.Clone(), p.token
	p.lock.Unlock()

	if current == nil || !current.Expired(p.nowTime()) {
		return current, nil
	}
	if tok == nil || tok.RefreshToken == "" {
		p.setSession(nil, nil, sessions.EventSignedOut)
		return nil, nil
	}

	expired := *tok
	expired.Expiry = p.nowTime().Add(-time.Second)
	fresh, err := p.oauth2Config.TokenSource(p.clientContext(ctx), &expired).Token()
	if err != nil {
		log.Err(err).Str("user", current.User.Email).Msg("Token refresh failed, signing out")
		p.setSession(nil, nil, sessions.EventSignedOut)
		return nil, nil
	}
	s, err := p.sessionFrom(ctx, fresh)
	if err != nil {
		// refresh responses may omit the id token
		s = current
		s.AccessToken = fresh.AccessToken
		s.RefreshToken = fresh.RefreshToken
		s.ExpiresAt = fresh.Expiry
		s.ExpiresIn = int(fresh.Expiry.Sub(p.nowTime()) / time.Second)
	}
	p.setSession(s, fresh, sessions.EventTokenRefreshed)
	return s.Clone(), nil
}

func (p *Provider) Subscribe() *sessions.Subscription {
	return p.events.Subscribe()
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *Provider) setSession(s *sessions.Session, tok *oauth2.Token, kind sessions.EventKind) {
	p.lock.Lock()
	p.current = s.Clone()
	p.token = tok
	p.lock.Unlock()
	p.events.Publish(sessions.ChangeEvent{Kind: kind, Session: s})
}

func (p *Provider) sessionFrom(ctx context.Context, tok *oauth2.Token) (*sessions.Session, error) {
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("[oidcpassword] token response without id_token")
	}
	idToken, err := p.verifier.Verify(oidc.ClientContext(ctx, p.httpClient), rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcpassword] verify id_token")
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[oidcpassword] id_token claims")
	}

	s := &sessions.Session{
		AccessToken:  tok.AccessToken,
		TokenType:    strings.ToLower(tok.Type()),
		ExpiresAt:    tok.Expiry,
		RefreshToken: tok.RefreshToken,
		User:         users.Identity{ID: idToken.Subject, Email: claims.Email},
	}
	if !tok.Expiry.IsZero() {
		s.ExpiresIn = int(tok.Expiry.Sub(p.nowTime()) / time.Second)
	}
	return s, nil
}

func (p *Provider) revokeToken(ctx context.Context, token, tokenTypeHint string) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", tokenTypeHint)
	form.Set("client_id", p.oauth2Config.ClientID)
	form.Set("client_secret", p.oauth2Config.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		log.Err(err).Str("token_type", tokenTypeHint).Msg("Failed to build revoke request")
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Err(err).Str("token_type", tokenTypeHint).Msg("Failed to revoke token")
		return
	}
	resp.Body.Close()
}

func convertTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		apiErr := &authprovider.Error{Code: re.ErrorCode, Message: re.ErrorDescription}
		if re.Response != nil {
			apiErr.Status = re.Response.StatusCode
		}
		if apiErr.Message == "" {
			apiErr.Message = "token request rejected"
		}
		return apiErr
	}
	return errors.Wrap(err, "[oidcpassword] token request")
}
