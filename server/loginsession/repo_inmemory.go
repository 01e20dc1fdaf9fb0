package loginsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jonkersai/website/internal/errors"
)

// InMemoryLoginSessionRepo is an in-memory implementation of Repo
type InMemoryLoginSessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session // sessionID -> Session
	nowTime  func() time.Time
}

// InMemoryOption defines a function type to modify the InMemoryLoginSessionRepo instance.
type InMemoryOption func(*InMemoryLoginSessionRepo)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) InMemoryOption {
	return func(r *InMemoryLoginSessionRepo) {
		r.nowTime = nowFunc
	}
}

// NewInMemoryLoginSessionRepo creates a new in-memory login session repository
func NewInMemoryLoginSessionRepo(options ...InMemoryOption) *InMemoryLoginSessionRepo {
	r := &InMemoryLoginSessionRepo{
		sessions: make(map[string]Session),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Upsert creates or updates a login session
func (r *InMemoryLoginSessionRepo) Upsert(_ context.Context, sessionID string, session Session) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = session
	return nil
}

// Get retrieves a login session. Expired sessions are removed on read.
func (r *InMemoryLoginSessionRepo) Get(_ context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, fmt.Errorf("sessionID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, apperrors.ErrSessionNotFound
	}
	if session.Expired(r.nowTime()) {
		delete(r.sessions, sessionID)
		return Session{}, apperrors.ErrSessionExpired
	}
	return session, nil
}

// Delete removes a login session
func (r *InMemoryLoginSessionRepo) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID) // already gone is fine
	return nil
}
