package contact_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonkersai/website/contact"
	"github.com/jonkersai/website/internal/validation"
	"github.com/jonkersai/website/recordstore"
	fakestore "github.com/jonkersai/website/recordstore/repofake"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

type webhook struct {
	mu       sync.Mutex
	failures int // number of leading requests answered with 500
	bodies   []map[string]any
}

func (w *webhook) calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bodies)
}

func (w *webhook) lastBody() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bodies[len(w.bodies)-1]
}

type testFixture struct {
	store     *fakestore.FakeStore
	hook      *webhook
	server    *httptest.Server
	submitter *contact.Submitter
}

func setupTestFixture(t *testing.T, failures int) *testFixture {
	t.Helper()
	hook := &webhook{failures: failures}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		hook.mu.Lock()
		hook.bodies = append(hook.bodies, body)
		fail := len(hook.bodies) <= hook.failures
		hook.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	store := fakestore.NewFakeStore()
	s, err := contact.NewSubmitter(store, srv.URL,
		contact.WithRetryDelay(time.Millisecond),
		contact.WithNowTime(func() time.Time { return testNow }),
	)
	require.NoError(t, err)
	return &testFixture{store: store, hook: hook, server: srv, submitter: s}
}

func validRequest() contact.Request {
	return contact.Request{
		Name:        "Jan de Vries",
		Email:       "jan@example.nl",
		CompanyName: "Tandarts Utrecht",
		Problems:    "Missed calls",
	}
}

func TestSubmit_StoresAndDelivers(t *testing.T) {
	f := setupTestFixture(t, 0)

	out, err := f.submitter.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	require.True(t, out.Stored)
	require.True(t, out.Delivered)
	require.Equal(t, 1, f.hook.calls())

	rows := f.store.Rows(contact.Table)
	require.Len(t, rows, 1)
	require.Equal(t, contact.ServiceAICallers, rows[0]["service"])

	body := f.hook.lastBody()
	require.Equal(t, "ai-callers", body["service"])
	require.Equal(t, "Tandarts Utrecht", body["company_name"])
	require.Nil(t, body["additional_info"])
	require.Equal(t, testNow.Format(time.RFC3339Nano), body["submitted_at"])
}

func TestSubmit_WebhookRetriedExactlyTwice(t *testing.T) {
	f := setupTestFixture(t, 10)

	out, err := f.submitter.Submit(context.Background(), validRequest())
	require.NoError(t, err, "the store accepted the request")
	require.True(t, out.Stored)
	require.False(t, out.Delivered)
	require.Equal(t, 3, f.hook.calls())
}

func TestSubmit_WebhookSucceedsOnRetry(t *testing.T) {
	f := setupTestFixture(t, 2)
	f.store.Fail("insert", contact.Table, errors.New("store down"))

	out, err := f.submitter.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	require.False(t, out.Stored)
	require.True(t, out.Delivered)
	require.Equal(t, 3, f.hook.calls())
}

func TestSubmit_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		closed   bool
		want     error
	}{
		{"permission", &recordstore.Error{Code: recordstore.CodeInsufficientPrivilege, Message: "rls"}, false, contact.ErrPermissionDenied},
		{"constraint", &recordstore.Error{Code: recordstore.CodeNotNullViolation, Message: "null"}, false, contact.ErrInvalidInput},
		{"network", errors.New("store down"), true, contact.ErrNetwork},
		{"other", errors.New("store down"), false, contact.ErrSubmissionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, 10)
			f.store.Fail("insert", contact.Table, tt.storeErr)
			if tt.closed {
				f.server.Close()
			}

			out, err := f.submitter.Submit(context.Background(), validRequest())
			require.ErrorIs(t, err, tt.want)
			require.False(t, out.Stored)
			require.False(t, out.Delivered)
		})
	}
}

func TestSubmit_Validation(t *testing.T) {
	f := setupTestFixture(t, 0)
	req := validRequest()
	req.Email = "not-an-email"

	_, err := f.submitter.Submit(context.Background(), req)
	require.Contains(t, validation.Fields(err), "email")
	require.Empty(t, f.store.Calls())
	require.Equal(t, 0, f.hook.calls())
}

func TestSubmit_CancelledDuringRetryDelay(t *testing.T) {
	f := setupTestFixture(t, 10)
	s, err := contact.NewSubmitter(f.store, f.server.URL, contact.WithRetryDelay(time.Hour))
	require.NoError(t, err)
	f.store.Fail("insert", contact.Table, errors.New("store down"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = s.Submit(ctx, validRequest())
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 1, f.hook.calls())
}
