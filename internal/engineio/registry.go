package engineio

import "sync"

// Registry is the process-wide sid -> *Session mapping described in
// spec.md §4.2, guarded by a single RWMutex (the teacher's
// Server.connsBySocket pattern, generalized out of the transport layer).
type Registry struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry bound to a single, immutable Config.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Create allocates a new session, registers it, and starts its heartbeat.
func (r *Registry) Create(transport Transport, peerInfo any) *Session {
	s := newSession(r, r.cfg, transport, peerInfo)

	r.mu.Lock()
	r.sessions[s.sid] = s
	r.mu.Unlock()

	go s.heartbeatLoop()
	return s
}

// Get looks up a session by sid.
func (r *Registry) Get(sid string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	return s, ok
}

// Count reports the number of live sessions, for operability/metrics.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// remove is idempotent: only the first caller for a given sid actually
// removes it from the map and runs teardown, so Session.Close can be called
// from multiple goroutines (reader loop, heartbeat timeout, forced close)
// without racing.
func (r *Registry) remove(sid string, reason CloseReason) {
	r.mu.Lock()
	s, ok := r.sessions[sid]
	if ok {
		delete(r.sessions, sid)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	s.shutdown(reason)
}

// CloseAll force-closes every live session, e.g. on server shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Close(ReasonServerShutdown)
	}
}
