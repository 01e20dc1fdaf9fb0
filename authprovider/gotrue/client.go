// Package gotrue implements authprovider.Provider against a hosted GoTrue-style
// auth REST API (password grant, refresh grant, logout).
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jonkersai/website/authprovider"
	"github.com/jonkersai/website/sessions"
	"github.com/jonkersai/website/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// refreshMargin is how long before expiry the auto-refresh loop renews a session.
const refreshMargin = time.Minute

var (
	_ authprovider.Provider      = (*Client)(nil)
	_ authprovider.Revoker       = (*Client)(nil)
	_ authprovider.AutoRefresher = (*Client)(nil)
)

type Client struct {
	baseURL    string // e.g. https://project.example.co/auth/v1
	apiKey     string
	httpClient *http.Client
	nowTime    func() time.Time

	lock    sync.Mutex
	current *sessions.Session
	events  *sessions.Broadcaster
}

// ClientOption configures the Client.
type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// New creates a client for the auth API at baseURL ("/auth/v1" is appended when missing).
func New(baseURL, apiKey string, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[gotrue.New] base url is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/auth/v1") {
		baseURL += "/auth/v1"
	}
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		nowTime:    time.Now,
		events:     sessions.NewBroadcaster(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Code             any    `json:"code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (c *Client) PasswordSignIn(ctx context.Context, email, password string) (*sessions.Session, error) {
	var tr tokenResponse
	err := c.post(ctx, "/token", url.Values{"grant_type": {"password"}}, "", map[string]string{
		"email":    email,
		"password": password,
	}, &tr)
	if err != nil {
		return nil, err
	}
	s, err := c.sessionFrom(tr)
	if err != nil {
		return nil, err
	}
	c.setSession(s, sessions.EventSignedIn)
	return s.Clone(), nil
}

// Refresh exchanges the current refresh token for a new session.
func (c *Client) Refresh(ctx context.Context) (*sessions.Session, error) {
	c.lock.Lock()
	current := c.current.Clone()
	c.lock.Unlock()
	if current == nil || current.RefreshToken == "" {
		return nil, authprovider.ErrNoSession
	}

	var tr tokenResponse
	err := c.post(ctx, "/token", url.Values{"grant_type": {"refresh_token"}}, "", map[string]string{
		"refresh_token": current.RefreshToken,
	}, &tr)
	if err != nil {
		return nil, err
	}
	s, err := c.sessionFrom(tr)
	if err != nil {
		return nil, err
	}
	c.setSession(s, sessions.EventTokenRefreshed)
	return s.Clone(), nil
}

// SignOut revokes the session server side and always clears it locally.
func (c *Client) SignOut(ctx context.Context) error {
	c.lock.Lock()
	current := c.current
	c.lock.Unlock()

	var err error
	if current != nil {
		err = c.post(ctx, "/logout", nil, current.AccessToken, nil, nil)
	}
	c.setSession(nil, sessions.EventSignedOut)
	if err != nil {
		return errors.Wrap(err, "[gotrue.SignOut] logout")
	}
	return nil
}

// Revoke logs s out at the provider. The client's own session is untouched.
func (c *Client) Revoke(ctx context.Context, s *sessions.Session) error {
	if s == nil || s.AccessToken == "" || s.Synthesized {
		return nil
	}
	if err := c.post(ctx, "/logout", nil, s.AccessToken, nil, nil); err != nil {
		return errors.Wrap(err, "[gotrue.Revoke] logout")
	}
	return nil
}

// CurrentSession returns the live session, refreshing it when expired. A
// session that cannot be refreshed is dropped and SIGNED_OUT is published.
func (c *Client) CurrentSession(ctx context.Context) (*sessions.Session, error) {
	c.lock.Lock()
	current := c.current.Clone()
	c.lock.Unlock()
	if current == nil {
		return nil, nil
	}
	if !current.Expired(c.nowTime()) {
		return current, nil
	}
	s, err := c.Refresh(ctx)
	if err != nil {
		log.Err(err).Str("user", current.User.Email).Msg("Session expired and refresh failed")
		c.setSession(nil, sessions.EventSignedOut)
		return nil, nil
	}
	return s, nil
}

// Restore installs a previously issued session, e.g. one read from disk.
func (c *Client) Restore(s *sessions.Session) {
	c.setSession(s, sessions.EventInitialSession)
}

func (c *Client) Subscribe() *sessions.Subscription {
	return c.events.Subscribe()
}

// AutoRefresh renews the session shortly before it expires until ctx is done.
// A failed renewal ends the session.
func (c *Client) AutoRefresh(ctx context.Context) {
	for {
		c.lock.Lock()
		current := c.current.Clone()
		c.lock.Unlock()

		wait := time.Minute
		if current != nil && !current.ExpiresAt.IsZero() {
			wait = current.ExpiresAt.Sub(c.nowTime()) - refreshMargin
			if wait < 0 {
				wait = 0
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if current == nil || current.RefreshToken == "" || current.ExpiresAt.Sub(c.nowTime()) > refreshMargin {
			continue
		}
		if _, err := c.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Err(err).Str("user", current.User.Email).Msg("Auto refresh failed, signing out")
			c.setSession(nil, sessions.EventSignedOut)
		}
	}
}

func (c *Client) setSession(s *sessions.Session, kind sessions.EventKind) {
	c.lock.Lock()
	c.current = s.Clone()
	c.lock.Unlock()
	c.events.Publish(sessions.ChangeEvent{Kind: kind, Session: s})
}

// sessionFrom converts a token response. Missing expiry or identity fields are
// read from the access token's claims; the token is not verified here, the
// issuing server is trusted over TLS.
func (c *Client) sessionFrom(tr tokenResponse) (*sessions.Session, error) {
	if tr.AccessToken == "" {
		return nil, errors.New("[gotrue] token response without access token")
	}
	s := &sessions.Session{
		AccessToken:  tr.AccessToken,
		TokenType:    strings.ToLower(tr.TokenType),
		ExpiresIn:    tr.ExpiresIn,
		RefreshToken: tr.RefreshToken,
		User:         users.Identity{ID: tr.User.ID, Email: tr.User.Email},
	}
	if s.TokenType == "" {
		s.TokenType = sessions.TokenTypeBearer
	}
	switch {
	case tr.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		s.ExpiresAt = c.nowTime().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	if s.ExpiresAt.IsZero() || s.User.ID == "" || s.User.Email == "" {
		claims := jwtlib.MapClaims{}
		if _, _, err := jwtlib.NewParser().ParseUnverified(tr.AccessToken, claims); err == nil {
			if s.ExpiresAt.IsZero() {
				if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
					s.ExpiresAt = exp.Time
					s.ExpiresIn = int(exp.Time.Sub(c.nowTime()) / time.Second)
				}
			}
			if s.User.ID == "" {
				s.User.ID, _ = claims.GetSubject()
			}
			if s.User.Email == "" {
				s.User.Email, _ = claims["email"].(string)
			}
		}
	}
	if s.User.ID == "" {
		return nil, errors.New("[gotrue] token response without user")
	}
	return s, nil
}

func (c *Client) post(ctx context.Context, path string, params url.Values, bearer string, body any, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[gotrue] encode body")
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, reader)
	if err != nil {
		return errors.Wrap(err, "[gotrue] new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if bearer == "" {
		bearer = c.apiKey
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "[gotrue] POST %s", path)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "[gotrue] read response")
	}

	if resp.StatusCode >= 300 {
		var er errorResponse
		_ = json.Unmarshal(data, &er)
		apiErr := &authprovider.Error{Status: resp.StatusCode, Code: er.ErrorCode, Message: er.ErrorDescription}
		if apiErr.Code == "" {
			apiErr.Code = er.Error
		}
		for _, m := range []string{er.Msg, er.Message, er.Error} {
			if apiErr.Message == "" {
				apiErr.Message = m
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("POST %s failed", path)
		}
		return apiErr
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "[gotrue] decode response")
		}
	}
	return nil
}
