package session

import "sync"

// Registry maps user ids to their single live session. It is safe for concurrent
// use; iteration works on a snapshot so handlers may insert or remove meanwhile.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Get returns the session of userID.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// CreateOrReplace stores s and returns the session it replaced, if any, so the
// caller can release the previous actor.
func (r *Registry) CreateOrReplace(s *Session) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.sessions[s.UserID]
	r.sessions[s.UserID] = s
	return prev, ok
}

// Remove deletes and returns the session of userID.
func (r *Registry) Remove(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if ok {
		delete(r.sessions, userID)
	}
	return s, ok
}

// RemoveIf deletes the session of userID only if it is still s.
func (r *Registry) RemoveIf(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[s.UserID]
	if !ok || cur != s {
		return false
	}
	delete(r.sessions, s.UserID)
	return true
}

// Current reports whether s is still the registered session for its user.
func (r *Registry) Current(s *Session) bool {
	cur, ok := r.Get(s.UserID)
	return ok && cur == s
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the live sessions in no particular order.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
