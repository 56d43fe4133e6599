// Package session holds the client-side authentication session: the
// observable session state, the proactive renewal scheduler, the
// renewal coordinator and the request authenticator.
package session

import (
	"sync"

	"github.com/identkit/identcli/api"
)

// State is the single source of truth for "is the user authenticated"
// and "who is the user". Both slots replay their latest value to new
// subscribers. Only the session manager and the login/logout flows
// mutate it; the rest of the application reads.
type State struct {
	mu            sync.Mutex
	authenticated bool
	user          *api.User
	nextID        int
	authSubs      map[int]chan bool
	userSubs      map[int]chan *api.User
}

// NewState creates an unauthenticated state with no user.
func NewState() *State {
	return &State{
		authSubs: make(map[int]chan bool),
		userSubs: make(map[int]chan *api.User),
	}
}

// Authenticated reports the current authentication flag.
func (s *State) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// CurrentUser returns the loaded user profile, or nil when it has not
// been fetched. A nil user does not imply unauthenticated: the profile
// loads lazily after boot.
func (s *State) CurrentUser() *api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// SetAuthenticated publishes a new authentication flag.
func (s *State) SetAuthenticated(authenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = authenticated
	for _, ch := range s.authSubs {
		replace(ch, authenticated)
	}
}

// SetUser publishes a new current user. A non-nil user implies an
// authenticated session, so the flag is raised alongside it.
func (s *State) SetUser(user *api.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	for _, ch := range s.userSubs {
		replace(ch, user)
	}
	if user != nil && !s.authenticated {
		s.authenticated = true
		for _, ch := range s.authSubs {
			replace(ch, true)
		}
	}
}

// SubscribeAuthenticated returns a channel that immediately yields the
// current flag and then every subsequent change. A slow reader only
// skips intermediate values, never the latest. The cancel func releases
// the subscription.
func (s *State) SubscribeAuthenticated() (<-chan bool, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan bool, 1)
	ch <- s.authenticated
	s.authSubs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.authSubs[id]; ok {
			delete(s.authSubs, id)
			close(ch)
		}
	}
}

// SubscribeUser returns a channel with replay-latest semantics for the
// current user slot.
func (s *State) SubscribeUser() (<-chan *api.User, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan *api.User, 1)
	ch <- s.user
	s.userSubs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.userSubs[id]; ok {
			delete(s.userSubs, id)
			close(ch)
		}
	}
}

// replace delivers value on a one-slot channel, displacing an unread
// stale value instead of blocking.
func replace[T any](ch chan T, value T) {
	for {
		select {
		case ch <- value:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
