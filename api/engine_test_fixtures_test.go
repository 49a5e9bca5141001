package api

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory Connection that records every delivered frame.
type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	failSend bool
	closed   bool
}

func (f *fakeConn) Send(message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("transport failure")
	}
	if f.closed {
		return errors.New("connection closed")
	}
	frame := make([]byte, len(message))
	copy(frame, message)
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("already closed")
	}
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// receivedEnvelope is the decoded wire frame as a test sees it.
type receivedEnvelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (f *fakeConn) envelopes(t *testing.T) []receivedEnvelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]receivedEnvelope, 0, len(f.frames))
	for _, frame := range f.frames {
		var env receivedEnvelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	return out
}

func (f *fakeConn) typesSeen(t *testing.T) []MessageType {
	t.Helper()
	envs := f.envelopes(t)
	types := make([]MessageType, 0, len(envs))
	for _, env := range envs {
		types = append(types, env.Type)
	}
	return types
}

func (f *fakeConn) lastOfType(t *testing.T, msgType MessageType) (receivedEnvelope, bool) {
	t.Helper()
	envs := f.envelopes(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type == msgType {
			return envs[i], true
		}
	}
	return receivedEnvelope{}, false
}

func (f *fakeConn) countOfType(t *testing.T, msgType MessageType) int {
	t.Helper()
	count := 0
	for _, env := range f.envelopes(t) {
		if env.Type == msgType {
			count++
		}
	}
	return count
}

// newTestEngine wires a broadcaster and registry the way main does.
func newTestEngine(maxParticipants int, graceTimeout time.Duration) (*SessionManager, *Broadcaster) {
	broadcaster := NewBroadcaster()
	manager := NewSessionManager(maxParticipants, graceTimeout, broadcaster)
	broadcaster.SetSessionManager(manager)
	return manager, broadcaster
}

// newPairedSession creates a two-user session with both users connected.
func newPairedSession(t *testing.T, manager *SessionManager) (*CollaborationSession, *fakeConn, *fakeConn) {
	t.Helper()

	session, err := manager.CreateSession("", nil)
	require.NoError(t, err)

	alice := &fakeConn{}
	bob := &fakeConn{}
	_, _, err = manager.RegisterParticipant(session.ID(), "alice", "Alice", alice)
	require.NoError(t, err)
	_, _, err = manager.RegisterParticipant(session.ID(), "bob", "Bob", bob)
	require.NoError(t, err)

	return session, alice, bob
}
