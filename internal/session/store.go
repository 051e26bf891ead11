// Package session owns the client's sign-in state and the flows that change it.
package session

import (
	"sync"

	"github.com/brizzai/diary-auth/internal/auth/models"
)

// Route is the screen a client may show for a given state
type Route int

const (
	RouteLoading Route = iota
	RouteSignIn
	RouteDiary
)

func (r Route) String() string {
	switch r {
	case RouteLoading:
		return "loading"
	case RouteSignIn:
		return "sign-in"
	case RouteDiary:
		return "diary"
	default:
		return "unknown"
	}
}

// State is the process-wide view of who is signed in
type State struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	TokenType    string
	IsLoading    bool
}

// SignedIn reports whether a user is present
func (s State) SignedIn() bool {
	return s.User != nil
}

// Route decides which screen is authorized. Nothing is shown while loading.
func (s State) Route() Route {
	switch {
	case s.IsLoading:
		return RouteLoading
	case s.User != nil:
		return RouteDiary
	default:
		return RouteSignIn
	}
}

// Listener is called with the new state after every change
type Listener func(State)

// Store holds one State and notifies subscribers synchronously, in subscription order
type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	order     []int
	nextID    int
}

// NewStore returns a store that is loading until the first session lookup finishes
func NewStore() *Store {
	return &Store{
		state:     State{IsLoading: true},
		listeners: make(map[int]Listener),
	}
}

// State returns a snapshot
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers l and returns a function that removes it. Removing twice is a no-op.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// update applies fn and notifies with the resulting state. Listeners run outside the lock
// so they may read the store or unsubscribe.
func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	state := s.state
	listeners := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

func (s *Store) setLoading(loading bool) {
	s.update(func(st *State) {
		st.IsLoading = loading
	})
}

func (s *Store) setSession(session *models.Session) {
	s.update(func(st *State) {
		st.User = session.User
		st.AccessToken = session.AccessToken
		st.RefreshToken = session.RefreshToken
		st.TokenType = session.TokenType
	})
}

func (s *Store) clear() {
	s.mu.Lock()
	empty := s.state.User == nil && s.state.AccessToken == ""
	s.mu.Unlock()
	if empty {
		return
	}
	s.update(func(st *State) {
		st.User = nil
		st.AccessToken = ""
		st.RefreshToken = ""
		st.TokenType = ""
	})
}
