// Package session holds the locally stored credential set (bearer token,
// legacy user id) for an authenticated Muset user. The store is injected
// into every component that needs it; there is no package-global state.
package session

import "sync"

// Store is the single source of truth for the current session credentials.
// It is safe for concurrent use. Readers never observe a half-cleared
// credential pair: token and user id are always swapped together.
type Store struct {
	mu      sync.RWMutex
	token   string
	userID  string
	onClear func()
}

// New creates an empty, unauthenticated store.
func New() *Store {
	return &Store{}
}

// OnClear registers a hook invoked after Clear actually removed
// credentials. Callers use it to trigger navigation to the login view.
// The hook runs outside the store lock.
func (s *Store) OnClear(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClear = hook
}

// SetCredentials stores the token and user id atomically.
func (s *Store) SetCredentials(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.userID = userID
}

// Token returns the current bearer token if one is set.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// UserID returns the current user id if one is set.
func (s *Store) UserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

// Authenticated reports whether a token is currently stored.
func (s *Store) Authenticated() bool {
	_, ok := s.Token()
	return ok
}

// Clear removes both credentials atomically. The OnClear hook fires only
// when there was something to clear, so repeated Clear calls trigger at
// most one hook invocation per stored session.
func (s *Store) Clear() {
	s.mu.Lock()
	cleared := s.token != "" || s.userID != ""
	s.token = ""
	s.userID = ""
	hook := s.onClear
	s.mu.Unlock()

	if cleared && hook != nil {
		hook()
	}
}
