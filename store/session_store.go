package store

import (
	"sync"
	"time"

	"cart-session-service/models"

	"github.com/google/uuid"
)

// Session is a read-only snapshot of an experience session. Events is a
// copy; mutating it never touches the stored log.
type Session struct {
	SessionID         string
	BackendContextRef string
	LastActivityAt    time.Time
	Completed         bool
	Events            []models.CartEvent
}

type session struct {
	id                string
	backendContextRef string
	lastActivityAt    time.Time
	completed         bool
	events            []models.CartEvent
}

// SessionStore owns the experience sessions and their append-only event
// logs. The map itself is safe for concurrent use; per-session operation
// interleaving is the caller's concern.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session

	// sweepMu ensures a single active sweep at a time.
	sweepMu sync.Mutex
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session),
	}
}

// CreateSession allocates a new session with an empty log, no backend
// handle and completed=false.
func (s *SessionStore) CreateSession() string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &session{
		id:             id,
		lastActivityAt: time.Now(),
	}
	return id
}

// GetSession returns a snapshot of the session and refreshes its activity
// clock.
func (s *SessionStore) GetSession(sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, &models.SessionNotFoundError{SessionID: sessionID}
	}
	sess.lastActivityAt = time.Now()

	return Session{
		SessionID:         sess.id,
		BackendContextRef: sess.backendContextRef,
		LastActivityAt:    sess.lastActivityAt,
		Completed:         sess.completed,
		Events:            copyEvents(sess.events),
	}, nil
}

// AppendEvent appends to the session's log and refreshes its activity
// clock. The log is append-only; nothing is ever rewritten or reordered.
// Callers guard against appending to a completed session.
func (s *SessionStore) AppendEvent(sessionID string, event models.CartEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return &models.SessionNotFoundError{SessionID: sessionID}
	}
	sess.events = append(sess.events, event)
	sess.lastActivityAt = time.Now()
	return nil
}

// Events returns a defensive copy of the session's event log in append
// order.
func (s *SessionStore) Events(sessionID string) ([]models.CartEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, &models.SessionNotFoundError{SessionID: sessionID}
	}
	return copyEvents(sess.events), nil
}

// SetBackendContextRef records the backend handle currently believed valid
// for the session.
func (s *SessionStore) SetBackendContextRef(sessionID, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return &models.SessionNotFoundError{SessionID: sessionID}
	}
	sess.backendContextRef = handle
	return nil
}

// MarkCompleted flips the session to completed. The transition is one-way;
// marking an already-completed session is a no-op.
func (s *SessionStore) MarkCompleted(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return &models.SessionNotFoundError{SessionID: sessionID}
	}
	sess.completed = true
	return nil
}

// SweepExpiredSessions removes sessions whose idle time exceeds maxIdle as
// of now, and returns how many were removed. Only one sweep runs at a
// time; a second concurrent call returns immediately. Scheduling is the
// host's job, the store never starts timers.
func (s *SessionStore) SweepExpiredSessions(maxIdle time.Duration, now time.Time) int {
	if !s.sweepMu.TryLock() {
		return 0
	}
	defer s.sweepMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastActivityAt) > maxIdle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func copyEvents(events []models.CartEvent) []models.CartEvent {
	out := make([]models.CartEvent, len(events))
	copy(out, events)
	return out
}
