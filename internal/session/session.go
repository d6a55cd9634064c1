// Package session manages onboarding session lifecycle: one controller per
// connected client, dropped after a maximum age or an idle period.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/onboarding/internal/notify"
	"github.com/matthewbaird/onboarding/internal/onboarding"
)

// Session holds per-connection onboarding state.
type Session struct {
	ID         string                 `json:"id"`
	Client     string                 `json:"client"`
	Controller *onboarding.Controller `json:"-"`
	CreatedAt  time.Time              `json:"created_at"`

	mu           sync.Mutex
	lastActiveAt time.Time
	attached     int
}

// Attach marks a live connection on the session. Attached sessions are not
// reaped by Cleanup however quiet they are.
func (s *Session) Attach() {
	s.mu.Lock()
	s.attached++
	s.lastActiveAt = time.Now()
	s.mu.Unlock()
}

// Detach releases a connection taken with Attach.
func (s *Session) Detach() {
	s.mu.Lock()
	if s.attached > 0 {
		s.attached--
	}
	s.lastActiveAt = time.Now()
	s.mu.Unlock()
}

// Attached reports whether a connection is using the session.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached > 0
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActiveAt = time.Now()
	s.mu.Unlock()
}

// LastActiveAt returns the last activity timestamp.
func (s *Session) LastActiveAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveAt
}

// IsExpired returns true if the session has exceeded the given max age.
func (s *Session) IsExpired(maxAge time.Duration) bool {
	return time.Since(s.CreatedAt) > maxAge
}

// IsIdle returns true if the session has been idle longer than the timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	return time.Since(s.LastActiveAt()) > timeout
}

// Factory builds the controller of a new session. Toasts for the session go
// to sender, which may be nil.
type Factory func(id, client string, sender notify.Sender) (*onboarding.Controller, error)

// Manager handles session creation, lookup, and cleanup.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxAge      time.Duration
	idleTimeout time.Duration
	factory     Factory
}

// NewManager creates a session manager with the given timeouts.
func NewManager(maxAge, idleTimeout time.Duration, factory Factory) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		maxAge:      maxAge,
		idleTimeout: idleTimeout,
		factory:     factory,
	}
}

// Create creates a new session for client and returns it.
func (m *Manager) Create(client string, sender notify.Sender) (*Session, error) {
	id := uuid.New().String()
	ctrl, err := m.factory(id, client, sender)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	s := &Session{ID: id, Client: client, Controller: ctrl, CreatedAt: now, lastActiveAt: now}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Get retrieves a session by ID. Returns nil if not found or expired.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if m.stale(s) {
		m.Remove(context.Background(), id)
		return nil
	}
	return s
}

func (m *Manager) stale(s *Session) bool {
	if s.Attached() {
		return false
	}
	return s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout)
}

// Remove deletes a session, writing its pending edits first.
func (m *Manager) Remove(ctx context.Context, id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		closeSession(ctx, s)
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cleanup removes all expired and idle sessions.
func (m *Manager) Cleanup(ctx context.Context) {
	var dropped []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if m.stale(s) {
			delete(m.sessions, id)
			dropped = append(dropped, s)
		}
	}
	m.mu.Unlock()
	for _, s := range dropped {
		closeSession(ctx, s)
	}
}

// Run calls Cleanup every interval until ctx is done, then closes every
// remaining session.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Cleanup(ctx)
		case <-ctx.Done():
			m.closeAll()
			return
		}
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		closeSession(context.Background(), s)
	}
}

func closeSession(ctx context.Context, s *Session) {
	if s.Controller == nil {
		return
	}
	if err := s.Controller.Close(ctx); err != nil {
		log.Printf("session: closing %s: %v", s.ID, err)
	}
}
