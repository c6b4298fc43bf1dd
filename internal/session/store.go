package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrIncompleteSession is returned when a caller attempts to store an identity
// without a credential, or a credential without an identity.
var ErrIncompleteSession = errors.New("session requires both an identity and a credential")

// User is the identity of the authenticated caller, as returned by the API.
type User struct {
	ID        string `json:"_id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Username  string `json:"username" yaml:"username"`
	Email     string `json:"email" yaml:"email"`
	AvatarURL string `json:"avatarUrl,omitempty" yaml:"avatarUrl,omitempty"`
	CreatedAt string `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Session is an immutable view of the store at a point in time. User is nil
// and Token is empty when unauthenticated.
type Session struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}

// Authenticated is true when the session holds an identity and credential.
func (s Session) Authenticated() bool {
	return s.User != nil && s.Token != ""
}

// Expired reports whether the credential carries an expiry that has passed.
// Opaque credentials never report as expired: the API decides.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store is the single source of truth for the current caller's identity and
// credential. All reads are synchronous and observe the latest write.
type Store struct {
	mu          sync.RWMutex
	user        *User
	token       string
	expiresAt   time.Time
	settled     bool
	changed     chan struct{}
	subscribers []subscriber
	nextID      int

	// notifyMu serialises notification delivery so subscribers observe
	// changes in write order.
	notifyMu sync.Mutex
}

type subscriber struct {
	id int
	fn func(Session)
}

func NewStore() *Store {
	return &Store{
		changed: make(chan struct{}),
	}
}

// Set replaces the identity and credential atomically and notifies
// subscribers. Both values must be present.
func (s *Store) Set(user User, token string) error {
	if user.ID == "" || token == "" {
		return ErrIncompleteSession
	}

	expiresAt := ParseExpiry(token)

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changedUser := s.user == nil || s.user.ID != user.ID
	s.user = &user
	s.token = token
	s.expiresAt = expiresAt
	current, subs := s.commit()
	s.mu.Unlock()

	ev := log.Debug()
	if changedUser {
		ev = log.Info()
	}
	ev.Str("user", user.ID).Time("expiry", expiresAt).Msg("session: updated")

	s.deliver(current, subs)
	return nil
}

// Clear empties the identity and credential atomically and notifies
// subscribers.
func (s *Store) Clear() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	hadSession := s.token != ""
	s.user = nil
	s.token = ""
	s.expiresAt = time.Time{}
	current, subs := s.commit()
	s.mu.Unlock()

	if hadSession {
		log.Info().Msg("session: cleared")
	}

	s.deliver(current, subs)
}

// Credential returns the current bearer credential, or an empty string when
// unauthenticated.
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// Identity returns the current user, if any.
func (s *Store) Identity() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Current returns a consistent view of identity and credential together.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshot()
}

// Settled is true once the store has been set, cleared or rehydrated. An
// unsettled store is still bootstrapping; a settled store without a
// credential is logged out.
func (s *Store) Settled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.settled
}

// Subscribe registers fn to be called after every change, in the order
// changes are made. fn must not write to the store. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(Session)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

// WaitForCredential blocks until a credential is present, the timeout elapses
// or the context is done. It returns the credential and whether one was
// found.
func (s *Store) WaitForCredential(ctx context.Context, timeout time.Duration) (string, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.RLock()
		token, changed := s.token, s.changed
		s.mu.RUnlock()

		if token != "" {
			return token, true
		}

		select {
		case <-changed:
			// re-check: the change may have been a clear
		case <-timer.C:
			return "", false
		case <-ctx.Done():
			return "", false
		}
	}
}

// markSettled flags the store as bootstrapped without changing its contents.
func (s *Store) markSettled() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settled {
		s.settled = true
		close(s.changed)
		s.changed = make(chan struct{})
	}
}

// commit wakes waiters and returns what subscribers need to see. Must be
// called with mu held for writing.
func (s *Store) commit() (Session, []subscriber) {
	s.settled = true
	close(s.changed)
	s.changed = make(chan struct{})

	subs := make([]subscriber, len(s.subscribers))
	copy(subs, s.subscribers)

	return s.snapshot(), subs
}

func (s *Store) snapshot() Session {
	sess := Session{Token: s.token, ExpiresAt: s.expiresAt}
	if s.user != nil {
		u := *s.user
		sess.User = &u
	}
	return sess
}

func (s *Store) deliver(current Session, subs []subscriber) {
	for _, sub := range subs {
		sub.fn(current)
	}
}
