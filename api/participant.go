package api

import "time"

// Connection is the transport handle attached to a participant. The
// websocket gateway provides the real implementation; tests substitute
// in-memory fakes. Send must not block: the gateway backs it with a
// buffered channel drained by a dedicated writer.
type Connection interface {
	Send(message []byte) error
	Close() error
}

// Participant is the presence record for one user within one session.
// It is owned exclusively by its CollaborationSession; the session lock
// guards all access.
type Participant struct {
	UserID   string
	Username string

	conn     Connection
	lastSeen time.Time
}

func newParticipant(userID, username string) *Participant {
	return &Participant{
		UserID:   userID,
		Username: username,
		lastSeen: time.Now().UTC(),
	}
}

// AttachConnection makes the participant reachable for broadcast.
func (p *Participant) AttachConnection(conn Connection) {
	p.conn = conn
	p.touch()
}

// DetachConnection marks the participant disconnected.
func (p *Participant) DetachConnection() {
	p.conn = nil
	p.touch()
}

// IsConnected reports whether the participant is reachable.
func (p *Participant) IsConnected() bool {
	return p.conn != nil
}

// LastSeen returns the time of the last connection state change.
func (p *Participant) LastSeen() time.Time {
	return p.lastSeen
}

func (p *Participant) touch() {
	p.lastSeen = time.Now().UTC()
}
