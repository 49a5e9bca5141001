package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesAllParticipants(t *testing.T) {
	manager, broadcaster := newTestEngine(2, time.Minute)
	session, alice, bob := newPairedSession(t, manager)

	broadcaster.Broadcast(session, Envelope{
		Type:    MessageTypeSessionEnded,
		Payload: SessionEndedPayload{Reason: "mutual"},
	})

	env, ok := alice.lastOfType(t, MessageTypeSessionEnded)
	require.True(t, ok)
	var payload SessionEndedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "mutual", payload.Reason)

	_, ok = bob.lastOfType(t, MessageTypeSessionEnded)
	assert.True(t, ok)
}

func TestBroadcastToOthersSkipsOriginator(t *testing.T) {
	manager, broadcaster := newTestEngine(2, time.Minute)
	session, alice, bob := newPairedSession(t, manager)

	broadcaster.BroadcastToOthers(session, "alice", Envelope{
		Type:    MessageTypeCursorUpdated,
		Payload: CursorUpdatedPayload{UserID: "alice"},
	})

	assert.Equal(t, 0, alice.countOfType(t, MessageTypeCursorUpdated))
	assert.Equal(t, 1, bob.countOfType(t, MessageTypeCursorUpdated))
}

func TestBroadcastSkipsDisconnectedParticipants(t *testing.T) {
	manager, broadcaster := newTestEngine(2, time.Minute)
	session, alice, bob := newPairedSession(t, manager)

	session.HandleDisconnect("alice")
	before := len(alice.envelopes(t))

	broadcaster.Broadcast(session, Envelope{Type: MessageTypeHeartbeatAck})

	assert.Len(t, alice.envelopes(t), before, "detached participant receives nothing")
	assert.Equal(t, 1, bob.countOfType(t, MessageTypeHeartbeatAck))
}

func TestBroadcastSurvivesFailingRecipient(t *testing.T) {
	manager, broadcaster := newTestEngine(2, time.Minute)
	session, alice, bob := newPairedSession(t, manager)

	alice.failSend = true

	broadcaster.Broadcast(session, Envelope{Type: MessageTypeHeartbeatAck})

	assert.Equal(t, 1, bob.countOfType(t, MessageTypeHeartbeatAck),
		"a failing recipient must not stop the fan-out")
}

func TestCloseSessionWithoutManagerIsNoOp(t *testing.T) {
	broadcaster := NewBroadcaster()
	assert.NotPanics(t, func() { broadcaster.CloseSession("anything") })
}
