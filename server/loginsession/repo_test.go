package loginsession_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jonkersai/website/internal/errors"
	"github.com/jonkersai/website/recordstore"
	"github.com/jonkersai/website/server/loginsession"
	"github.com/jonkersai/website/sessions"
	"github.com/jonkersai/website/users"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func testSession(expiresAt time.Time) loginsession.Session {
	s := &sessions.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		User:         users.Identity{ID: "user-1", Email: "a@example.com"},
	}
	return loginsession.FromSession(s, true, testNow, expiresAt)
}

func TestInMemory_UpsertGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := loginsession.NewInMemoryLoginSessionRepo(loginsession.WithNowTime(func() time.Time { return testNow }))

	want := testSession(testNow.Add(time.Hour))
	require.NoError(t, repo.Upsert(ctx, "sid", want))

	got, err := repo.Get(ctx, "sid")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, users.Identity{ID: "user-1", Email: "a@example.com"}, got.Identity())

	require.NoError(t, repo.Delete(ctx, "sid"))
	_, err = repo.Get(ctx, "sid")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	// deleting twice is fine
	require.NoError(t, repo.Delete(ctx, "sid"))
}

func TestInMemory_ExpiredSessionIsRemoved(t *testing.T) {
	ctx := context.Background()
	now := testNow
	repo := loginsession.NewInMemoryLoginSessionRepo(loginsession.WithNowTime(func() time.Time { return now }))

	require.NoError(t, repo.Upsert(ctx, "sid", testSession(testNow.Add(time.Minute))))

	now = testNow.Add(time.Minute)
	_, err := repo.Get(ctx, "sid")
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)

	_, err = repo.Get(ctx, "sid")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestInMemory_RequiresSessionID(t *testing.T) {
	repo := loginsession.NewInMemoryLoginSessionRepo()
	require.Error(t, repo.Upsert(context.Background(), "", loginsession.Session{}))
	_, err := repo.Get(context.Background(), "")
	require.Error(t, err)
}

func TestNewRedisLoginSessionRepo_RequiresClient(t *testing.T) {
	_, err := loginsession.NewRedisLoginSessionRepo(nil)
	require.Error(t, err)
}

// TestRedis_RoundTrip needs a Redis server; set JONKERSAI_TEST_REDIS_ADDR to run it.
func TestRedis_RoundTrip(t *testing.T) {
	addr := os.Getenv("JONKERSAI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("JONKERSAI_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	repo, err := loginsession.NewRedisLoginSessionRepo(client, loginsession.WithKeyPrefix("test:"+uuid.NewString()+":"))
	require.NoError(t, err)

	want := testSession(time.Now().Add(time.Hour).Truncate(time.Second).UTC())
	require.NoError(t, repo.Upsert(ctx, "sid", want))

	got, err := repo.Get(ctx, "sid")
	require.NoError(t, err)
	require.Equal(t, want.Email, got.Email)
	require.True(t, got.IsAdmin)
	require.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, repo.Delete(ctx, "sid"))
	_, err = repo.Get(ctx, "sid")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	err = repo.Upsert(ctx, "old", testSession(time.Now().Add(-time.Minute)))
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
}

func TestSession_CallerDropsSynthesizedToken(t *testing.T) {
	provider := testSession(testNow.Add(time.Hour))
	require.Equal(t, recordstore.Caller{UserID: "user-1", Email: "a@example.com", AccessToken: "access-1"}, provider.Caller())

	synthesized, err := sessions.Synthesize("owner-1", "owner@example.com", testNow)
	require.NoError(t, err)
	ls := loginsession.FromSession(synthesized, true, testNow, synthesized.ExpiresAt)
	require.Equal(t, recordstore.Caller{UserID: "owner-1", Email: "owner@example.com"}, ls.Caller())
}
