// FilePath: internal/session/registry.go
package session

import (
	"sync"

	"github.com/itsatony/relayhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// Registry is the process-wide routing table from account key to live
// session. Logins and logouts for different accounts happen concurrently,
// so insert/remove/lookup are guarded; everything inside a session is
// serialized by that session's own loop.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for the account, creating and starting
// one on first login. The profile loader runs only when a session is
// created.
func (r *Registry) GetOrCreate(email string, loadProfile func() *models.Profile) *Session {
	r.mu.RLock()
	s, ok := r.sessions[email]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.sessions[email]; ok {
		return s
	}
	s = New(email, loadProfile())
	r.sessions[email] = s
	nuts.L.Infof("[Registry] Session created for %s", email)
	return s
}

// Get returns the live session for the account, if any.
func (r *Registry) Get(email string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[email]
	return s, ok
}

// Remove drops and closes the account's session. Sessions survive plain
// disconnects (pin state and pending offline timers outlive connections);
// this is for administrative teardown.
func (r *Registry) Remove(email string) {
	r.mu.Lock()
	s, ok := r.sessions[email]
	if ok {
		delete(r.sessions, email)
	}
	r.mu.Unlock()

	if ok {
		s.Close()
		nuts.L.Infof("[Registry] Session removed for %s", email)
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ForEach visits every live session. The visit itself must not mutate
// session state; post to the session loop for that.
func (r *Registry) ForEach(fn func(s *Session)) {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		fn(s)
	}
}

// Close shuts down every session, invalidating all scheduled work.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
