package auth

import (
	"context"
	"sync"

	"github.com/jonkersai/website/authprovider"
	"github.com/jonkersai/website/sessions"
	"github.com/jonkersai/website/users"
	"github.com/pkg/errors"
)

// State of a Reconciler.
type State int

const (
	StateAuthenticating State = iota
	StateLoggedOut
	StateLoggedInUser
	StateLoggedInAdmin
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateLoggedInUser:
		return "logged_in_user"
	case StateLoggedInAdmin:
		return "logged_in_admin"
	default:
		return "authenticating"
	}
}

// Snapshot is an immutable view of the reconciled state.
type Snapshot struct {
	State      State
	Identity   *users.Identity
	Session    *sessions.Session
	IsAdmin    bool
	Generation uint64
}

func (s Snapshot) LoggedIn() bool {
	return s.State == StateLoggedInUser || s.State == StateLoggedInAdmin
}

func (s Snapshot) clone() Snapshot {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	s.Session = s.Session.Clone()
	return s
}

var loggedOut = Snapshot{State: StateLoggedOut}

func loggedInSnapshot(identity users.Identity, s *sessions.Session, isAdmin bool) Snapshot {
	snap := Snapshot{State: StateLoggedInUser, Identity: &identity, Session: s.Clone(), IsAdmin: isAdmin}
	if isAdmin {
		snap.State = StateLoggedInAdmin
	}
	return snap
}

const watcherBuffer = 8

// Reconciler keeps the single signed-in identity of one client consistent
// with the auth provider. Every state-changing operation takes a generation
// number when it starts; a completion only writes state while its generation
// is still the latest, so the last operation started wins.
type Reconciler struct {
	auth *Authenticator

	lock       sync.Mutex
	gen        uint64
	snap       Snapshot
	signingIn  int
	signingOut int
	watchers   map[int]chan Snapshot
	nextWatch  int

	sub     *sessions.Subscription
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	closed  bool
}

func NewReconciler(a *Authenticator) (*Reconciler, error) {
	if a == nil {
		return nil, errors.New("[NewReconciler] Authenticator is required")
	}
	return &Reconciler{
		auth:     a,
		snap:     Snapshot{State: StateAuthenticating},
		watchers: make(map[int]chan Snapshot),
	}, nil
}

// Start asks the provider for an existing session, settles the state and
// begins following provider session changes until Close.
func (r *Reconciler) Start(ctx context.Context) error {
	r.lock.Lock()
	if r.started || r.closed {
		r.lock.Unlock()
		return errors.New("[Reconciler.Start] already started")
	}
	r.started = true
	gen, prev := r.beginLocked()
	r.lock.Unlock()

	provider := r.auth.Provider()
	sub := provider.Subscribe()
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.lock.Lock()
	r.sub, r.cancel, r.done = sub, cancel, make(chan struct{})
	r.lock.Unlock()
	refresher, _ := provider.(authprovider.AutoRefresher)
	go r.follow(loopCtx, sub, refresher)

	session, err := provider.CurrentSession(ctx)
	if ctx.Err() != nil {
		r.abort(gen, prev)
		return newError(KindUnexpected, ctx.Err())
	}
	if err != nil || session == nil {
		if err != nil {
			r.auth.logger.Err(err).Msg("Probing current session failed")
		}
		r.settle(gen, loggedOut)
		return nil
	}

	isAdmin := r.auth.CheckAdminStatus(withSession(ctx, session), &session.User)
	if ctx.Err() != nil {
		r.abort(gen, prev)
		return newError(KindUnexpected, ctx.Err())
	}
	r.settle(gen, loggedInSnapshot(session.User, session, isAdmin))
	return nil
}

// SignIn signs in through the Authenticator and, unless a later operation
// started meanwhile, makes the result the current state. A failed sign-in
// leaves the Reconciler logged out.
func (r *Reconciler) SignIn(ctx context.Context, email, password string) (*Result, error) {
	r.lock.Lock()
	gen, prev := r.beginLocked()
	r.signingIn++
	r.lock.Unlock()

	res, err := r.auth.SignIn(ctx, email, password)

	r.lock.Lock()
	defer r.lock.Unlock()
	r.signingIn--

	if ctx.Err() != nil {
		r.settleLocked(gen, prev)
		return nil, newError(KindUnexpected, ctx.Err())
	}
	if err != nil {
		r.settleLocked(gen, loggedOut)
		return nil, err
	}
	r.settleLocked(gen, loggedInSnapshot(res.Identity, res.Session, res.IsAdmin))
	return res, nil
}

// SignOut ends the provider session and clears the state even when the
// provider call fails. The old identity is dropped as soon as it starts.
func (r *Reconciler) SignOut(ctx context.Context) {
	r.lock.Lock()
	r.gen++
	gen := r.gen
	r.signingOut++
	r.setLocked(Snapshot{State: StateAuthenticating})
	r.lock.Unlock()
	defer func() {
		r.lock.Lock()
		r.signingOut--
		r.lock.Unlock()
	}()

	r.auth.SignOut(ctx)
	r.settle(gen, loggedOut)
}

// UpdatePassword changes the password of the signed-in identity.
func (r *Reconciler) UpdatePassword(ctx context.Context, current, newPassword string) error {
	snap := r.Snapshot()
	if !snap.LoggedIn() || snap.Identity == nil {
		return newError(KindIncorrectCurrentPassword, errors.New("not signed in"))
	}
	r.lock.Lock()
	r.signingIn++
	r.lock.Unlock()
	defer func() {
		r.lock.Lock()
		r.signingIn--
		r.lock.Unlock()
	}()
	return r.auth.UpdatePassword(ctx, snap.Identity.Email, current, newPassword)
}

// Snapshot returns the current state.
func (r *Reconciler) Snapshot() Snapshot {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.snap.clone()
}

// Subscribe delivers every state change. Slow readers lose older snapshots.
// The returned function stops the subscription.
func (r *Reconciler) Subscribe() (<-chan Snapshot, func()) {
	r.lock.Lock()
	defer r.lock.Unlock()
	ch := make(chan Snapshot, watcherBuffer)
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextWatch
	r.nextWatch++
	r.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.lock.Lock()
			defer r.lock.Unlock()
			if c, ok := r.watchers[id]; ok {
				delete(r.watchers, id)
				close(c)
			}
		})
	}
}

// Close stops following the provider and ends all state subscriptions.
func (r *Reconciler) Close() {
	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		return
	}
	r.closed = true
	sub, cancel, done := r.sub, r.cancel, r.done
	r.lock.Unlock()

	if cancel != nil {
		cancel()
		sub.Unsubscribe()
		<-done
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	for id, ch := range r.watchers {
		delete(r.watchers, id)
		close(ch)
	}
}

// follow handles provider events until ctx ends. A provider that renews its
// own session runs its refresh loop for the same lifetime.
func (r *Reconciler) follow(ctx context.Context, sub *sessions.Subscription, refresher authprovider.AutoRefresher) {
	var wg sync.WaitGroup
	defer close(r.done)
	defer wg.Wait()
	if refresher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refresher.AutoRefresh(ctx)
		}()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			r.handleEvent(ctx, ev)
		}
	}
}

// handleEvent re-derives the state from a provider session change. Events
// caused by our own sign-in or sign-out are skipped; those operations settle
// the state themselves.
func (r *Reconciler) handleEvent(ctx context.Context, ev sessions.ChangeEvent) {
	r.lock.Lock()
	if ev.Kind == sessions.EventSignedIn && ev.Session != nil &&
		(r.signingIn > 0 || r.signingOut > 0 || (r.snap.Session != nil && r.snap.Session.AccessToken == ev.Session.AccessToken)) {
		r.lock.Unlock()
		return
	}
	if ev.Kind == sessions.EventSignedOut && (r.signingOut > 0 || r.snap.State == StateLoggedOut) {
		r.lock.Unlock()
		return
	}
	gen, prev := r.beginLocked()
	r.lock.Unlock()

	if ev.Session == nil {
		r.settle(gen, loggedOut)
		return
	}
	isAdmin := r.auth.CheckAdminStatus(withSession(ctx, ev.Session), &ev.Session.User)
	if ctx.Err() != nil {
		r.abort(gen, prev)
		return
	}
	r.settle(gen, loggedInSnapshot(ev.Session.User, ev.Session, isAdmin))
}

// beginLocked starts an operation: it takes the next generation and enters
// Authenticating. It returns the state to restore if the operation aborts.
func (r *Reconciler) beginLocked() (uint64, Snapshot) {
	prev := r.snap
	r.gen++
	r.setLocked(Snapshot{
		State:    StateAuthenticating,
		Identity: prev.Identity,
		Session:  prev.Session,
		IsAdmin:  prev.IsAdmin,
	})
	return r.gen, prev
}

func (r *Reconciler) settle(gen uint64, snap Snapshot) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.settleLocked(gen, snap)
}

func (r *Reconciler) settleLocked(gen uint64, snap Snapshot) bool {
	if gen != r.gen {
		return false
	}
	r.setLocked(snap)
	return true
}

func (r *Reconciler) abort(gen uint64, prev Snapshot) {
	r.settle(gen, prev)
}

func (r *Reconciler) setLocked(snap Snapshot) {
	snap.Generation = r.gen
	r.snap = snap
	for _, ch := range r.watchers {
		out := snap.clone()
		for {
			select {
			case ch <- out:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}
