package oidcpassword_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jonkersai/website/authprovider"
	"github.com/jonkersai/website/authprovider/oidcpassword"
	"github.com/jonkersai/website/sessions"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "website"
	testKeyID    = "key-1"
)

type issuer struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	mu      sync.Mutex
	revoked []string
}

func (is *issuer) revokedHints() []string {
	is.mu.Lock()
	defer is.mu.Unlock()
	return append([]string(nil), is.revoked...)
}

func (is *issuer) idToken(t *testing.T, sub, email string) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, jwtlib.MapClaims{
		"iss":   is.srv.URL,
		"aud":   testClientID,
		"sub":   sub,
		"email": email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = testKeyID
	signed, err := tok.SignedString(is.key)
	require.NoError(t, err)
	return signed
}

func setupTestFixture(t *testing.T) *issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	is := &issuer{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                is.srv.URL,
			"authorization_endpoint":                is.srv.URL + "/authorize",
			"token_endpoint":                        is.srv.URL + "/token",
			"jwks_uri":                              is.srv.URL + "/jwks",
			"revocation_endpoint":                   is.srv.URL + "/revoke",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": testKeyID,
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "password":
			if r.PostForm.Get("password") != "secret123" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid user credentials"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access-1",
				"token_type":    "Bearer",
				"expires_in":    300,
				"refresh_token": "refresh-1",
				"id_token":      is.idToken(t, "user-1", r.PostForm.Get("username")),
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unsupported_grant_type"}`))
		}
	})
	mux.HandleFunc("POST /revoke", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		is.mu.Lock()
		is.revoked = append(is.revoked, r.PostForm.Get("token_type_hint"))
		is.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	is.srv = httptest.NewServer(mux)
	t.Cleanup(is.srv.Close)
	return is
}

func TestPasswordSignIn_VerifiesIDToken(t *testing.T) {
	is := setupTestFixture(t)
	p, err := oidcpassword.New(context.Background(), is.srv.URL, testClientID, "client-secret")
	require.NoError(t, err)

	sub := p.Subscribe()
	defer sub.Unsubscribe()

	s, err := p.PasswordSignIn(context.Background(), "a@b.com", "secret123")
	require.NoError(t, err)
	require.Equal(t, "user-1", s.User.ID)
	require.Equal(t, "a@b.com", s.User.Email)
	require.Equal(t, "access-1", s.AccessToken)
	require.Equal(t, "refresh-1", s.RefreshToken)
	require.Equal(t, sessions.TokenTypeBearer, s.TokenType)
	require.False(t, s.Expired(time.Now()))

	select {
	case ev := <-sub.C:
		require.Equal(t, sessions.EventSignedIn, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	cur, err := p.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, s.AccessToken, cur.AccessToken)
}

func TestPasswordSignIn_RejectedCredentials(t *testing.T) {
	is := setupTestFixture(t)
	p, err := oidcpassword.New(context.Background(), is.srv.URL, testClientID, "client-secret")
	require.NoError(t, err)

	s, err := p.PasswordSignIn(context.Background(), "a@b.com", "wrong")
	require.Nil(t, s)
	require.ErrorIs(t, err, authprovider.ErrInvalidGrant)
}

func TestSignOut_RevokesBothTokens(t *testing.T) {
	is := setupTestFixture(t)
	p, err := oidcpassword.New(context.Background(), is.srv.URL, testClientID, "client-secret")
	require.NoError(t, err)

	_, err = p.PasswordSignIn(context.Background(), "a@b.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, p.SignOut(context.Background()))
	require.Equal(t, []string{"refresh_token", "access_token"}, is.revokedHints())

	cur, err := p.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, cur)
}

func TestNew_RequiresIssuer(t *testing.T) {
	_, err := oidcpassword.New(context.Background(), "", testClientID, "")
	require.Error(t, err)
}
