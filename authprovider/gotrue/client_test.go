package gotrue_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jonkersai/website/authprovider"
	"github.com/jonkersai/website/authprovider/gotrue"
	"github.com/jonkersai/website/sessions"
	"github.com/stretchr/testify/require"
)

type fakeAuthServer struct {
	mu          sync.Mutex
	password    string
	logoutCalls int
	refreshFail bool
	lastAuth    string
}

func (fs *fakeAuthServer) logouts() (int, string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.logoutCalls, fs.lastAuth
}

func signedToken(t *testing.T, sub, email string, exp time.Time) string {
	t.Helper()
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func setupTestFixture(t *testing.T, now time.Time) (*fakeAuthServer, *gotrue.Client) {
	t.Helper()
	fs := &fakeAuthServer{password: "secret123"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["password"] != fs.password {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
				return
			}
			// identity only in the token claims
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  signedToken(t, "user-1", body["email"], now.Add(time.Hour)),
				"token_type":    "bearer",
				"refresh_token": "refresh-1",
			})
		case "refresh_token":
			if fs.refreshFail || body["refresh_token"] != "refresh-1" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error_code":"refresh_token_not_found","msg":"Invalid Refresh Token"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "refreshed",
				"token_type":    "bearer",
				"expires_in":    3600,
				"refresh_token": "refresh-1",
				"user":          map[string]string{"id": "user-1", "email": "a@b.com"},
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.logoutCalls++
		fs.lastAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := gotrue.New(srv.URL, "anon-key", gotrue.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)
	return fs, c
}

func nextEvent(t *testing.T, sub *sessions.Subscription) sessions.ChangeEvent {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return sessions.ChangeEvent{}
	}
}

func TestPasswordSignIn_ReadsIdentityFromClaims(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	_, c := setupTestFixture(t, now)
	sub := c.Subscribe()
	defer sub.Unsubscribe()

	s, err := c.PasswordSignIn(context.Background(), "a@b.com", "secret123")
	require.NoError(t, err)
	require.Equal(t, "user-1", s.User.ID)
	require.Equal(t, "a@b.com", s.User.Email)
	require.Equal(t, now.Add(time.Hour).Unix(), s.ExpiresAt.Unix())
	require.Equal(t, sessions.TokenTypeBearer, s.TokenType)

	ev := nextEvent(t, sub)
	require.Equal(t, sessions.EventSignedIn, ev.Kind)
	require.Equal(t, s.AccessToken, ev.Session.AccessToken)
}

func TestPasswordSignIn_InvalidGrant(t *testing.T) {
	_, c := setupTestFixture(t, time.Now())

	s, err := c.PasswordSignIn(context.Background(), "a@b.com", "wrong")
	require.Nil(t, s)
	require.ErrorIs(t, err, authprovider.ErrInvalidGrant)

	var apiErr *authprovider.Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "Invalid login credentials", apiErr.Message)

	cur, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, cur)
}

func TestCurrentSession_RefreshesExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	_, c := setupTestFixture(t, now)

	c.Restore(&sessions.Session{
		AccessToken:  "old",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Add(-time.Minute),
	})
	sub := c.Subscribe()
	defer sub.Unsubscribe()

	s, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "refreshed", s.AccessToken)
	require.Equal(t, now.Add(time.Hour), s.ExpiresAt)
	require.Equal(t, sessions.EventTokenRefreshed, nextEvent(t, sub).Kind)
}

func TestCurrentSession_FailedRefreshSignsOut(t *testing.T) {
	now := time.Now()
	fs, c := setupTestFixture(t, now)
	fs.refreshFail = true

	c.Restore(&sessions.Session{AccessToken: "old", RefreshToken: "refresh-1", ExpiresAt: now.Add(-time.Second)})
	sub := c.Subscribe()
	defer sub.Unsubscribe()

	s, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, s)

	ev := nextEvent(t, sub)
	require.Equal(t, sessions.EventSignedOut, ev.Kind)
	require.Nil(t, ev.Session)
}

func runAutoRefresh(t *testing.T, c *gotrue.Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.AutoRefresh(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestAutoRefresh_RenewsExpiringSession(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	_, c := setupTestFixture(t, now)
	c.Restore(&sessions.Session{AccessToken: "old", RefreshToken: "refresh-1", ExpiresAt: now.Add(30 * time.Second)})
	sub := c.Subscribe()
	defer sub.Unsubscribe()

	runAutoRefresh(t, c)

	ev := nextEvent(t, sub)
	require.Equal(t, sessions.EventTokenRefreshed, ev.Kind)
	require.Equal(t, "refreshed", ev.Session.AccessToken)
	require.Equal(t, now.Add(time.Hour), ev.Session.ExpiresAt)
}

func TestAutoRefresh_FailedRenewalSignsOut(t *testing.T) {
	now := time.Now()
	fs, c := setupTestFixture(t, now)
	fs.mu.Lock()
	fs.refreshFail = true
	fs.mu.Unlock()
	c.Restore(&sessions.Session{AccessToken: "old", RefreshToken: "refresh-1", ExpiresAt: now.Add(10 * time.Second)})
	sub := c.Subscribe()
	defer sub.Unsubscribe()

	runAutoRefresh(t, c)

	ev := nextEvent(t, sub)
	require.Equal(t, sessions.EventSignedOut, ev.Kind)
	require.Nil(t, ev.Session)

	cur, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, cur)
}

func TestSignOut_RevokesWithAccessToken(t *testing.T) {
	fs, c := setupTestFixture(t, time.Now())

	s, err := c.PasswordSignIn(context.Background(), "a@b.com", "secret123")
	require.NoError(t, err)

	require.NoError(t, c.SignOut(context.Background()))
	calls, auth := fs.logouts()
	require.Equal(t, 1, calls)
	require.Equal(t, "Bearer "+s.AccessToken, auth)

	cur, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, cur)

	// nothing to revoke
	require.NoError(t, c.SignOut(context.Background()))
	calls, _ = fs.logouts()
	require.Equal(t, 1, calls)
}

func TestRevoke_KeepsClientSession(t *testing.T) {
	fs, c := setupTestFixture(t, time.Now())

	s, err := c.PasswordSignIn(context.Background(), "a@b.com", "secret123")
	require.NoError(t, err)

	other := &sessions.Session{AccessToken: "other-token"}
	require.NoError(t, c.Revoke(context.Background(), other))
	calls, auth := fs.logouts()
	require.Equal(t, 1, calls)
	require.Equal(t, "Bearer other-token", auth)

	// synthesized sessions are unknown to the provider
	require.NoError(t, c.Revoke(context.Background(), &sessions.Session{AccessToken: "custom_auth_x", Synthesized: true}))
	calls, _ = fs.logouts()
	require.Equal(t, 1, calls)

	cur, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, s.AccessToken, cur.AccessToken)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := gotrue.New("", "key")
	require.Error(t, err)
}
