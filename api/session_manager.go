package api

import (
	"sync"
	"time"

	"github.com/peerprep/collab/internal/slogging"
	"github.com/peerprep/collab/internal/uuidgen"
)

// SessionManager is the process-wide registry of live sessions: no
// session exists outside its map. It routes participant lifecycle events
// to the right session and owns teardown. Different sessions run fully
// concurrently; the registry lock only guards the map itself.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*CollaborationSession

	maxParticipants int
	graceTimeout    time.Duration
	broadcaster     *Broadcaster
}

// NewSessionManager creates the registry. The broadcaster must already be
// constructed; wire its back-reference with SetSessionManager afterwards.
func NewSessionManager(maxParticipants int, graceTimeout time.Duration, broadcaster *Broadcaster) *SessionManager {
	return &SessionManager{
		sessions:        make(map[string]*CollaborationSession),
		maxParticipants: maxParticipants,
		graceTimeout:    graceTimeout,
		broadcaster:     broadcaster,
	}
}

// CreateSession registers a new session. A missing id gets a generated
// unique one; a supplied id that collides with a live session is a
// creation error.
func (m *SessionManager) CreateSession(sessionID string, question *Question) (*CollaborationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID == "" {
		sessionID = uuidgen.NewString()
		for _, exists := m.sessions[sessionID]; exists; _, exists = m.sessions[sessionID] {
			sessionID = uuidgen.NewString()
		}
	} else if _, exists := m.sessions[sessionID]; exists {
		return nil, ErrSessionExists
	}

	session := newCollaborationSession(sessionID, question, m.maxParticipants, m.graceTimeout, m.broadcaster)
	m.sessions[sessionID] = session
	metricActiveSessions.Inc()
	slogging.Get().Info("created collaboration session %s", sessionID)

	return session, nil
}

// GetSession returns the session or nil if it is not registered.
func (m *SessionManager) GetSession(sessionID string) *CollaborationSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// ListSessions returns summaries of every live session.
func (m *SessionManager) ListSessions() []SessionSummary {
	m.mu.RLock()
	sessions := make([]*CollaborationSession, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, session.Summary())
	}
	return summaries
}

// CloseSession removes the session from the registry and tears it down:
// timers cancelled, every participant connection best-effort closed.
// Closing a session that is already gone is a no-op.
func (m *SessionManager) CloseSession(sessionID string) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	session.teardown()
	metricActiveSessions.Dec()
	slogging.Get().Info("closed collaboration session %s", sessionID)
}

// RegisterParticipant joins a user to a session.
func (m *SessionManager) RegisterParticipant(sessionID, userID, username string, conn Connection) (*CollaborationSession, *Participant, error) {
	session := m.GetSession(sessionID)
	if session == nil {
		return nil, nil, ErrSessionNotFound
	}

	participant, err := session.AddParticipant(userID, username, conn)
	if err != nil {
		return nil, nil, err
	}

	return session, participant, nil
}

// RemoveParticipant drops a user from a session; removing the last
// participant deletes the session.
func (m *SessionManager) RemoveParticipant(sessionID, userID string) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}

	session.RemoveParticipant(userID)

	empty := session.ParticipantCount() == 0
	if empty {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if empty {
		session.teardown()
		metricActiveSessions.Dec()
		slogging.Get().Info("closed empty collaboration session %s", sessionID)
	}
}

// HandleDisconnect routes a dropped connection to its session. A
// disconnect racing a teardown is expected and harmless, so a missing
// session is a no-op.
func (m *SessionManager) HandleDisconnect(sessionID, userID string) {
	session := m.GetSession(sessionID)
	if session == nil {
		return
	}
	session.HandleDisconnect(userID)
}

// HandleReconnect routes a returning connection to its session. A missing
// session is a no-op, not an error; an unknown user within a live session
// is reported back to the actor.
func (m *SessionManager) HandleReconnect(sessionID, userID string, conn Connection) error {
	session := m.GetSession(sessionID)
	if session == nil {
		return nil
	}
	return session.HandleReconnect(userID, conn)
}
