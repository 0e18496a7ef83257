package session

import (
	"sync"
	"time"
)

// Request describes a session to register.
type Request struct {
	Kind           Kind
	Initiator      Participant
	Target         Participant
	BestOf         int
	CreatedAt      time.Time
	AcceptDeadline time.Time
}

// Registry is the table of live sessions. Every operation runs under a single
// mutex, so register, lookup and remove are atomic with respect to each other.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register creates and stores a Pending session. It fails without mutating
// anything when the initiator already owns a live session, or when either
// participant is playing in someone else's.
func (r *Registry) Register(req Request) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.Initiator.ID == req.Initiator.ID && !s.Status().Terminal() {
			return nil, ErrAlreadyActive
		}
	}
	for _, s := range r.sessions {
		if s.Status().Terminal() {
			continue
		}
		if s.Involves(req.Initiator.ID) || s.Involves(req.Target.ID) {
			return nil, ErrParticipantBusy
		}
	}

	s := newSession(req)
	r.sessions[s.ID] = s
	return s, nil
}

// Lookup returns the session stored under id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Active returns the live session playerID is seated in, if any.
func (r *Registry) Active(playerID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.Involves(playerID) && !s.Status().Terminal() {
			return s, true
		}
	}
	return nil, false
}

// Remove deletes the session stored under id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// release removes s only if it is still the entry under its id; a newer
// session for the same initiator is left alone.
func (r *Registry) release(s *Session) {
	r.mu.Lock()
	if r.sessions[s.ID] == s {
		delete(r.sessions, s.ID)
	}
	r.mu.Unlock()
	s.finish()
}

// Len returns the number of stored sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// List snapshots every stored session.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	return out
}
