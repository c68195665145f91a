// Package auth holds a device's session state and the operations that change it.
//
// The Store is readable by anyone through View, but only the Gateway in this
// package can mutate it.
package auth

import (
	"sync"

	"github.com/ashureev/agro-solar-web/internal/domain"
)

// Session is a snapshot of the authentication state.
type Session struct {
	User            domain.UserProfile `json:"user"`
	IsAuthenticated bool               `json:"isAuthenticated"`
	Loading         bool               `json:"loading"`
}

// View is read-only access to a session.
type View interface {
	Session() Session
}

// Store is the single source of truth for who is logged in on one device.
type Store struct {
	mu      sync.RWMutex
	session Session
}

// NewStore returns a store in the loading state, before the session check has run.
func NewStore() *Store {
	return &Store{session: Session{Loading: true}}
}

// Session returns a copy of the current state.
func (s *Store) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.session
	if out.User != nil {
		out.User = append(domain.UserProfile(nil), out.User...)
	}
	return out
}

// set marks the device authenticated as user. Callers must pass a present profile.
func (s *Store) set(user domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.User = append(domain.UserProfile(nil), user...)
	s.session.IsAuthenticated = true
}

func (s *Store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.User = nil
	s.session.IsAuthenticated = false
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Loading = loading
}
