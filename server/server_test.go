package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonkersai/website/auth"
	fakeprovider "github.com/jonkersai/website/authprovider/repofake"
	"github.com/jonkersai/website/blog"
	"github.com/jonkersai/website/contact"
	"github.com/jonkersai/website/internal/config"
	"github.com/jonkersai/website/recordstore"
	fakestore "github.com/jonkersai/website/recordstore/repofake"
	"github.com/jonkersai/website/server"
	"github.com/jonkersai/website/server/loginsession"
	"github.com/jonkersai/website/sessions"
	"github.com/jonkersai/website/sitemap"
	"github.com/jonkersai/website/users"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

const (
	userEmail  = "editor@example.com"
	adminEmail = "jan@jonkersai.nl"
	password   = "OldPass123"
)

type testFixture struct {
	store    *fakestore.FakeStore
	provider *fakeprovider.FakeProvider
	sessions *loginsession.InMemoryLoginSessionRepo
	server   *server.Server
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(webhook.Close)

	v := viper.New()
	v.Set("env", "TEST")
	v.Set("cors.allowed_origins", []string{"https://jonkersai.nl"})
	cfg := config.FromViper(v)

	nowFunc := func() time.Time { return testNow }
	store := fakestore.NewFakeStore()
	provider := fakeprovider.NewFakeProvider()
	provider.AddAccount("user-1", userEmail, password)
	provider.AddAccount("admin-1", adminEmail, password)

	authenticator, err := auth.NewAuthenticator(auth.Repos{
		Provider:    provider,
		Credentials: users.NewStoreCredentialRepo(store),
		Store:       store,
	}, auth.WithNowTime(nowFunc), auth.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	blogService, err := blog.NewService(store, blog.WithNowTime(nowFunc))
	require.NoError(t, err)
	submitter, err := contact.NewSubmitter(store, webhook.URL, contact.WithRetryDelay(time.Millisecond), contact.WithNowTime(nowFunc))
	require.NoError(t, err)
	generator, err := sitemap.NewGenerator(cfg.GetBaseURL(), blogService)
	require.NoError(t, err)
	loginSessions := loginsession.NewInMemoryLoginSessionRepo(loginsession.WithNowTime(nowFunc))

	s, err := server.New(cfg, server.Services{
		Auth:          authenticator,
		Blog:          blogService,
		Contact:       submitter,
		Sitemap:       generator,
		LoginSessions: loginSessions,
	}, server.WithNowTime(nowFunc))
	require.NoError(t, err)

	return &testFixture{store: store, provider: provider, sessions: loginSessions, server: s}
}

func (f *testFixture) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *testFixture) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	rec := f.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": email, "password": password}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(t, rec)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "loggedInSessionId" {
			return c
		}
	}
	t.Fatal("no login session cookie set")
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type sessionBody struct {
	State   string          `json:"state"`
	User    *users.Identity `json:"user"`
	IsAdmin bool            `json:"is_admin"`
}

func TestNew_RequiresServices(t *testing.T) {
	_, err := server.New(config.FromViper(viper.New()), server.Services{})
	require.Error(t, err)
}

func TestLogin_StartsLoginSession(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": userEmail, "password": password}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[sessionBody](t, rec)
	require.Equal(t, "logged_in_user", body.State)
	require.Equal(t, "user-1", body.User.ID)
	require.False(t, body.IsAdmin)

	cookie := sessionCookie(t, rec)
	require.True(t, cookie.HttpOnly)
	require.NotEmpty(t, cookie.Value)

	stored, err := f.sessions.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	require.Equal(t, userEmail, stored.Email)
	require.NotEmpty(t, stored.AccessToken)

	rec = f.do(t, http.MethodGet, server.RouteAuthSession, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "logged_in_user", decode[sessionBody](t, rec).State)
}

func TestLogin_AdminDomain(t *testing.T) {
	f := setupTestFixture(t)
	cookie := f.login(t, adminEmail)

	rec := f.do(t, http.MethodGet, server.RouteAuthSession, nil, cookie)
	body := decode[sessionBody](t, rec)
	require.Equal(t, "logged_in_admin", body.State)
	require.True(t, body.IsAdmin)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": userEmail, "password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[map[string]string](t, rec)
	require.Equal(t, "invalid_credentials", body["error"])
	require.Equal(t, "invalid email or password", body["error_description"])
	require.Empty(t, rec.Result().Cookies())
}

func TestLogin_RejectsInvalidBody(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": "not-an-email"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[struct {
		Fields map[string]string `json:"fields"`
	}](t, rec)
	require.Contains(t, body.Fields, "email")
	require.Contains(t, body.Fields, "password")
	require.Zero(t, f.provider.SignInCalls())
}

func TestSession_LoggedOutWithoutCookie(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodGet, server.RouteAuthSession, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "logged_out", decode[sessionBody](t, rec).State)

	rec = f.do(t, http.MethodGet, server.RouteAuthSession, nil, &http.Cookie{Name: "loggedInSessionId", Value: "unknown"})
	require.Equal(t, "logged_out", decode[sessionBody](t, rec).State)
}

func TestSession_ReDerivesAdminStatus(t *testing.T) {
	f := setupTestFixture(t)
	cookie := f.login(t, userEmail)

	f.store.Seed(users.CredentialsTable, recordstore.Row{"id": "user-1", "email": userEmail, "is_admin": true})

	rec := f.do(t, http.MethodGet, server.RouteAuthSession, nil, cookie)
	require.Equal(t, "logged_in_admin", decode[sessionBody](t, rec).State)

	stored, err := f.sessions.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	require.True(t, stored.IsAdmin)

	rec = f.do(t, http.MethodGet, server.RouteAdminStats, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSynthesizedAdmin_StoreCallsUseStoreKey(t *testing.T) {
	f := setupTestFixture(t)
	const ownerEmail = "owner@example.com"
	f.store.Seed(users.CredentialsTable, recordstore.Row{
		"id": "owner-1", "email": ownerEmail, "Password": password, "password_hash": password, "is_admin": true,
	})
	// the hosted store only accepts JWT bearers
	f.store.SetCallerCheck(func(c recordstore.Caller) error {
		if strings.HasPrefix(c.AccessToken, sessions.SynthesizedTokenPrefix) {
			return &recordstore.Error{Code: "PGRST301", Message: "JWSError JWSInvalidSignature"}
		}
		return nil
	})

	cookie := f.login(t, ownerEmail)
	stored, err := f.sessions.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	require.True(t, stored.Synthesized)
	require.True(t, stored.IsAdmin)

	rec := f.do(t, http.MethodGet, server.RouteAdminStats, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, server.RouteAuthSession, nil, cookie)
	body := decode[sessionBody](t, rec)
	require.Equal(t, "logged_in_admin", body.State)
	require.True(t, body.IsAdmin)

	stored, err = f.sessions.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	require.True(t, stored.IsAdmin)

	for _, c := range f.store.Calls() {
		require.Empty(t, c.Caller.AccessToken, "%s %s", c.Method, c.Target)
	}
}

func TestLogout_RevokesAndEndsSession(t *testing.T) {
	f := setupTestFixture(t)
	cookie := f.login(t, userEmail)
	stored, err := f.sessions.Get(context.Background(), cookie.Value)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, server.RouteAuthLogout, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "logged_out", decode[sessionBody](t, rec).State)
	require.Less(t, sessionCookie(t, rec).MaxAge, 0)
	require.Equal(t, []string{stored.AccessToken}, f.provider.Revoked())

	rec = f.do(t, http.MethodGet, server.RouteAuthSession, nil, cookie)
	require.Equal(t, "logged_out", decode[sessionBody](t, rec).State)

	// logging out again still succeeds
	rec = f.do(t, http.MethodPost, server.RouteAuthLogout, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutes_RequireAdminLogin(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodGet, server.RouteAdminPosts, nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie := f.login(t, userEmail)
	rec = f.do(t, http.MethodGet, server.RouteAdminPosts, nil, cookie)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Zero(t, f.store.CallCount("select", blog.PostsTable))
}

func TestAdminPosts_PublishedPostIsPublic(t *testing.T) {
	f := setupTestFixture(t)
	cookie := f.login(t, adminEmail)

	publishedAt := testNow.Add(-time.Hour)
	rec := f.do(t, http.MethodPost, server.RouteAdminPosts, blog.PostInput{
		Title:       "AI Callers for Dental Practices",
		Content:     "<p>body</p>",
		Excerpt:     "Short summary",
		Status:      blog.StatusPublished,
		PublishedAt: &publishedAt,
	}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	post := decode[blog.Post](t, rec)
	require.Equal(t, "ai-callers-for-dental-practices", post.Slug)
	require.Equal(t, "admin-1", post.AuthorID)

	rec = f.do(t, http.MethodGet, server.RouteBlogPosts, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	posts := decode[[]map[string]any](t, rec)
	require.Len(t, posts, 1)
	require.Equal(t, post.ID, posts[0]["id"])
	require.Equal(t, blog.DefaultAuthorName, posts[0]["author_name"])
	require.NotContains(t, posts[0], "author_id")
	require.NotContains(t, posts[0], "author_email")

	rec = f.do(t, http.MethodGet, "/api/blog/posts/"+post.Slug, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "admin-1")
	require.NotContains(t, rec.Body.String(), adminEmail)

	rec = f.do(t, http.MethodGet, "/api/blog/posts/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, server.RouteSitemap, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/xml")
	require.Contains(t, rec.Body.String(), "<loc>https://jonkersai.nl/blog/ai-callers-for-dental-practices</loc>")

	rec = f.do(t, http.MethodDelete, "/api/admin/posts/"+post.ID, nil, cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/admin/posts/"+post.ID, nil, cookie)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminPosts_InvalidInput(t *testing.T) {
	f := setupTestFixture(t)
	cookie := f.login(t, adminEmail)

	rec := f.do(t, http.MethodPost, server.RouteAdminPosts, blog.PostInput{Title: "Only a title"}, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[struct {
		Fields map[string]string `json:"fields"`
	}](t, rec)
	require.Contains(t, body.Fields, "content")
}

func TestAdminCategories_DeleteInUseConflicts(t *testing.T) {
	f := setupTestFixture(t)
	cookie := f.login(t, adminEmail)

	rec := f.do(t, http.MethodPost, server.RouteAdminCategories, map[string]string{"name": "Voice AI"}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	term := decode[blog.Term](t, rec)
	require.Equal(t, "voice-ai", term.Slug)

	f.store.Seed(blog.PostCategoriesTable, recordstore.Row{"post_id": "post-1", "category_id": term.ID})

	rec = f.do(t, http.MethodDelete, "/api/admin/categories/"+term.ID, nil, cookie)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminTags_CreateRenameDelete(t *testing.T) {
	f := setupTestFixture(t)
	cookie := f.login(t, adminEmail)

	rec := f.do(t, http.MethodPost, server.RouteAdminTags, map[string]string{"name": "Automation"}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	term := decode[blog.Term](t, rec)

	rec = f.do(t, http.MethodPut, "/api/admin/tags/"+term.ID, map[string]string{"name": "Lead Gen"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "lead-gen", decode[blog.Term](t, rec).Slug)

	rec = f.do(t, http.MethodDelete, "/api/admin/tags/"+term.ID, nil, cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, server.RouteAdminTags, nil, cookie)
	require.Empty(t, decode[[]blog.Term](t, rec))
}

func TestChangePassword(t *testing.T) {
	f := setupTestFixture(t)
	f.store.Seed(users.CredentialsTable, recordstore.Row{
		"id": "user-1", "email": userEmail, "Password": password, "password_hash": password, "is_admin": false,
	})
	cookie := f.login(t, userEmail)

	rec := f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"current_password": password, "new_password": "weak"}, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"current_password": "wrong", "new_password": "NewPass123"}, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "incorrect_current_password", decode[map[string]string](t, rec)["error"])

	rec = f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"current_password": password, "new_password": "NewPass123"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows := f.store.Rows(users.CredentialsTable)
	require.Len(t, rows, 1)
	require.Equal(t, "NewPass123", rows[0][users.ColumnPassword])

	rec = f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"current_password": password, "new_password": "NewPass123"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestContact_Submit(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, server.RouteContact, contact.Request{
		Name:        "Jan de Vries",
		Email:       "jan@example.nl",
		CompanyName: "Tandarts Utrecht",
		Problems:    "Missed calls",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[contact.Outcome](t, rec)
	require.True(t, out.Stored)
	require.True(t, out.Delivered)
	require.Len(t, f.store.Rows(contact.Table), 1)

	rec = f.do(t, http.MethodPost, server.RouteContact, contact.Request{Name: "Jan"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCors_Preflight(t *testing.T) {
	f := setupTestFixture(t)

	req := httptest.NewRequest(http.MethodOptions, server.RouteContact, nil)
	req.Header.Set("Origin", "https://jonkersai.nl")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://jonkersai.nl", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, server.RouteContact, nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	f := setupTestFixture(t)
	rec := f.do(t, http.MethodGet, server.RouteHealth, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `"ok"`))
}
