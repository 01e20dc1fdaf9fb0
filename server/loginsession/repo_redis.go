package loginsession

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/jonkersai/website/internal/errors"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces login session keys.
const DefaultKeyPrefix = "jonkersai:loginsession:"

var _ Repo = (*RedisLoginSessionRepo)(nil)

// RedisLoginSessionRepo keeps login sessions as JSON values whose TTL ends at
// the session's ExpiresAt, so Redis evicts them on its own.
type RedisLoginSessionRepo struct {
	client    redis.UniversalClient
	keyPrefix string
	nowTime   func() time.Time
}

// RedisOption defines a function type to modify the RedisLoginSessionRepo instance.
type RedisOption func(*RedisLoginSessionRepo)

func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisLoginSessionRepo) {
		r.keyPrefix = prefix
	}
}

// WithRedisNowTime sets the now time function (primarily for testing)
func WithRedisNowTime(nowFunc func() time.Time) RedisOption {
	return func(r *RedisLoginSessionRepo) {
		r.nowTime = nowFunc
	}
}

func NewRedisLoginSessionRepo(client redis.UniversalClient, options ...RedisOption) (*RedisLoginSessionRepo, error) {
	if client == nil {
		return nil, errors.New("[NewRedisLoginSessionRepo] redis client is required")
	}
	r := &RedisLoginSessionRepo{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Upsert creates or updates a login session
func (r *RedisLoginSessionRepo) Upsert(ctx context.Context, sessionID string, session Session) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}
	ttl := session.ExpiresAt.Sub(r.nowTime())
	if ttl <= 0 {
		return apperrors.ErrSessionExpired
	}
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[RedisLoginSessionRepo.Upsert] encode")
	}
	if err := r.client.Set(ctx, r.key(sessionID), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "[RedisLoginSessionRepo.Upsert] set")
	}
	return nil
}

// Get retrieves a login session
func (r *RedisLoginSessionRepo) Get(ctx context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, fmt.Errorf("sessionID is required")
	}
	data, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return Session{}, errors.Wrap(err, "[RedisLoginSessionRepo.Get] get")
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, errors.Wrap(err, "[RedisLoginSessionRepo.Get] decode")
	}
	// the key TTL is second-granular
	if session.Expired(r.nowTime()) {
		return Session{}, apperrors.ErrSessionExpired
	}
	return session, nil
}

// Delete removes a login session
func (r *RedisLoginSessionRepo) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return errors.Wrap(err, "[RedisLoginSessionRepo.Delete] del")
	}
	return nil
}

func (r *RedisLoginSessionRepo) key(sessionID string) string {
	return r.keyPrefix + sessionID
}
