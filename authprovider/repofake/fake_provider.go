// Package fakeprovider is an in-memory authprovider.Provider used by tests.
package fakeprovider

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonkersai/website/authprovider"
	"github.com/jonkersai/website/sessions"
	"github.com/jonkersai/website/users"
)

var (
	_ authprovider.Provider      = (*FakeProvider)(nil)
	_ authprovider.Revoker       = (*FakeProvider)(nil)
	_ authprovider.AutoRefresher = (*FakeProvider)(nil)
)

type account struct {
	id       string
	password string
}

// SignInFunc replaces the default credential check.
type SignInFunc func(ctx context.Context, email, password string) (*sessions.Session, error)

type FakeProvider struct {
	lock        sync.Mutex
	accounts    map[string]account // email -> account
	current     *sessions.Session
	down        error
	signOutErr  error
	signInFunc  SignInFunc
	signInCalls int
	signOutCall int
	refreshing  bool
	revoked     []string
	events      *sessions.Broadcaster
	nowTime     func() time.Time
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		accounts: make(map[string]account),
		events:   sessions.NewBroadcaster(),
		nowTime:  time.Now,
	}
}

// AddAccount registers credentials and returns the account id.
func (p *FakeProvider) AddAccount(id, email, password string) string {
	p.lock.Lock()
	defer p.lock.Unlock()
	if id == "" {
		id = uuid.New().String()
	}
	p.accounts[email] = account{id: id, password: password}
	return id
}

// SetDown makes every call fail with err, simulating an outage. nil restores service.
func (p *FakeProvider) SetDown(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.down = err
}

// SetSignOutError makes SignOut fail with err after clearing the session.
func (p *FakeProvider) SetSignOutError(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.signOutErr = err
}

// SetSignInFunc overrides PasswordSignIn.
func (p *FakeProvider) SetSignInFunc(f SignInFunc) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.signInFunc = f
}

// SetSession installs a live session without an event, as if restored from storage.
func (p *FakeProvider) SetSession(s *sessions.Session) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.current = s.Clone()
}

// Emit pushes a change event to subscribers and updates the current session.
func (p *FakeProvider) Emit(ev sessions.ChangeEvent) {
	p.lock.Lock()
	p.current = ev.Session.Clone()
	p.lock.Unlock()
	p.events.Publish(ev)
}

func (p *FakeProvider) SignInCalls() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.signInCalls
}

func (p *FakeProvider) SignOutCalls() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.signOutCall
}

// Revoked returns the access tokens passed to Revoke.
func (p *FakeProvider) Revoked() []string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]string(nil), p.revoked...)
}

func (p *FakeProvider) Subscribers() int {
	return p.events.Subscribers()
}

func (p *FakeProvider) PasswordSignIn(ctx context.Context, email, password string) (*sessions.Session, error) {
	p.lock.Lock()
	p.signInCalls++
	down, override := p.down, p.signInFunc
	acc, ok := p.accounts[email]
	p.lock.Unlock()

	if down != nil {
		return nil, down
	}
	if override != nil {
		return override(ctx, email, password)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok || acc.password != password {
		return nil, &authprovider.Error{Status: 400, Code: "invalid_grant", Message: "Invalid login credentials"}
	}

	now := p.nowTime()
	s := &sessions.Session{
		AccessToken:  "provider-" + uuid.New().String(),
		TokenType:    sessions.TokenTypeBearer,
		ExpiresIn:    3600,
		ExpiresAt:    now.Add(time.Hour),
		RefreshToken: "refresh-" + uuid.New().String(),
		User:         users.Identity{ID: acc.id, Email: email},
	}
	p.lock.Lock()
	p.current = s.Clone()
	p.lock.Unlock()
	p.events.Publish(sessions.ChangeEvent{Kind: sessions.EventSignedIn, Session: s})
	return s, nil
}

func (p *FakeProvider) SignOut(ctx context.Context) error {
	p.lock.Lock()
	p.signOutCall++
	p.current = nil
	err := p.signOutErr
	if p.down != nil {
		err = p.down
	}
	p.lock.Unlock()
	if err != nil {
		return err
	}
	p.events.Publish(sessions.ChangeEvent{Kind: sessions.EventSignedOut})
	return nil
}

func (p *FakeProvider) Revoke(ctx context.Context, s *sessions.Session) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.down != nil {
		return p.down
	}
	if s != nil {
		p.revoked = append(p.revoked, s.AccessToken)
	}
	return nil
}

func (p *FakeProvider) CurrentSession(ctx context.Context) (*sessions.Session, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.down != nil {
		return nil, p.down
	}
	return p.current.Clone(), nil
}

// Refreshing reports whether an AutoRefresh loop is running.
func (p *FakeProvider) Refreshing() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.refreshing
}

// AutoRefresh marks the refresh loop as running until ctx is done.
func (p *FakeProvider) AutoRefresh(ctx context.Context) {
	p.lock.Lock()
	p.refreshing = true
	p.lock.Unlock()
	<-ctx.Done()
	p.lock.Lock()
	p.refreshing = false
	p.lock.Unlock()
}

func (p *FakeProvider) Subscribe() *sessions.Subscription {
	return p.events.Subscribe()
}
