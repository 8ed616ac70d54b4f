// Package session tracks live worker websocket connections. Each crab
// holds at most one session; the registry hands dispatched envelopes to
// the session's writer pump without ever blocking the caller.
package session

import (
	"sync"

	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/protocol"
)

// sendBuffer bounds the per-session outbound queue. A crab that stops
// reading loses envelopes rather than stalling dispatch.
const sendBuffer = 16

// Session is one live crab connection. The websocket handler drains
// Outbound and writes each envelope to the socket.
type Session struct {
	CrabID string
	ch     chan protocol.Envelope
}

// Outbound returns the channel of envelopes queued for this crab.
// It closes when the session is detached or replaced.
func (s *Session) Outbound() <-chan protocol.Envelope {
	return s.ch
}

// Registry maps crab ids to their live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Attach registers a new session for the crab. An existing session for
// the same crab is closed first, so a reconnect always wins.
func (r *Registry) Attach(crabID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions[crabID]; ok {
		close(old.ch)
		log.Info(log.CatWS, "Replacing crab session", "crab_id", crabID)
	}

	s := &Session{CrabID: crabID, ch: make(chan protocol.Envelope, sendBuffer)}
	r.sessions[crabID] = s
	return s
}

// Detach removes the session and closes its outbound channel. A session
// already replaced by a newer Attach is left alone, so a slow handler
// teardown cannot kill a fresh reconnect.
func (r *Registry) Detach(s *Session) {
	if s == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[s.CrabID]; ok && current == s {
		delete(r.sessions, s.CrabID)
		close(s.ch)
	}
}

// Send queues an envelope for the crab. Returns false when the crab has
// no session or its outbound queue is full; the envelope is dropped in
// either case.
func (r *Registry) Send(crabID string, env protocol.Envelope) bool {
	r.mu.RLock()
	s, ok := r.sessions[crabID]
	r.mu.RUnlock()

	if !ok {
		log.Warn(log.CatWS, "Dropping envelope for disconnected crab", "crab_id", crabID, "kind", env.Kind.Type)
		return false
	}

	select {
	case s.ch <- env:
		return true
	default:
		log.Warn(log.CatWS, "Dropping envelope for slow crab", "crab_id", crabID, "kind", env.Kind.Type)
		return false
	}
}

// Connected reports whether the crab currently has a session.
func (r *Registry) Connected(crabID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[crabID]
	return ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close detaches every session. Used on server shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		close(s.ch)
		delete(r.sessions, id)
	}
}
