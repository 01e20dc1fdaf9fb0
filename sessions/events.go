package sessions

import "sync"

// EventKind names a session change pushed by the auth provider.
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// ChangeEvent is the payload of a session-change notification. Session is nil
// when there is no longer a live session.
type ChangeEvent struct {
	Kind    EventKind
	Session *Session
}

const subscriptionBuffer = 16

// Subscription delivers change events on C until Unsubscribe is called.
// Subscribers must call Unsubscribe when they stop reading.
type Subscription struct {
	C <-chan ChangeEvent

	once        sync.Once
	unsubscribe func()
}

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.unsubscribe)
}

// Broadcaster fans change events out to subscribers. A subscriber that falls
// behind loses its oldest pending events, never the newest.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan ChangeEvent
	nextID int
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan ChangeEvent)}
}

func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan ChangeEvent, subscriptionBuffer)
	if b.closed {
		close(ch)
		return &Subscription{C: ch, unsubscribe: func() {}}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return &Subscription{
		C: ch,
		unsubscribe: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		},
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Broadcaster) Publish(ev ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	ev.Session = ev.Session.Clone()
	for _, ch := range b.subs {
		for {
			select {
			case ch <- ev:
			default:
				// full: drop the oldest and retry
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

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
