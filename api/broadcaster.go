package api

import (
	"encoding/json"

	"github.com/peerprep/collab/internal/slogging"
)

// Broadcaster fans a message out to the participants of a session. A
// failed delivery to one recipient is swallowed (logged and counted) so
// the rest of the fan-out always completes.
//
// The broadcaster holds a back-reference to the session registry so a
// grace-period expiry can force-close its session. The reference is wired
// after construction (SetSessionManager) because the registry also needs
// the broadcaster; this is a documented collaboration, not an ownership
// cycle.
type Broadcaster struct {
	manager *SessionManager
}

// NewBroadcaster creates a broadcaster. Call SetSessionManager before use.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// SetSessionManager wires the registry back-reference. Second phase of
// the two-phase initialization done in main.
func (b *Broadcaster) SetSessionManager(manager *SessionManager) {
	b.manager = manager
}

// Broadcast delivers a message to every connected participant of the
// session.
func (b *Broadcaster) Broadcast(s *CollaborationSession, msg Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.deliverLocked(s, "", msg)
}

// BroadcastToOthers delivers a message to every connected participant
// except the excluded user (typically the originator).
func (b *Broadcaster) BroadcastToOthers(s *CollaborationSession, excludedUserID string, msg Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.deliverLocked(s, excludedUserID, msg)
}

// CloseSession tears the session down through the registry.
func (b *Broadcaster) CloseSession(sessionID string) {
	if b.manager == nil {
		return
	}
	b.manager.CloseSession(sessionID)
}

// deliverLocked performs the fan-out. The caller holds the session lock;
// delivery is a buffered channel push per recipient and never blocks.
func (b *Broadcaster) deliverLocked(s *CollaborationSession, excludedUserID string, msg Envelope) {
	data, err := json.Marshal(msg)
	if err != nil {
		slogging.Get().Error("failed to marshal %s broadcast for session %s: %v", msg.Type, s.id, err)
		return
	}

	for _, participant := range s.participants {
		if participant.UserID == excludedUserID {
			continue
		}
		if !participant.IsConnected() {
			continue
		}
		if err := participant.conn.Send(data); err != nil {
			// Swallowed so the remaining recipients still get the message.
			metricBroadcastFailures.Inc()
			slogging.Get().Debug("dropped %s message to %s in session %s: %v", msg.Type, participant.UserID, s.id, err)
		}
	}
}
