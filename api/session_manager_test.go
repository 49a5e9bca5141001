package api

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionGeneratesUniqueID(t *testing.T) {
	manager, _ := newTestEngine(2, time.Minute)

	first, err := manager.CreateSession("", nil)
	require.NoError(t, err)
	second, err := manager.CreateSession("", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID())
	_, err = uuid.Parse(first.ID())
	assert.NoError(t, err, "generated ids are UUIDs")
}

func TestCreateSessionRejectsDuplicateID(t *testing.T) {
	manager, _ := newTestEngine(2, time.Minute)

	_, err := manager.CreateSession("interview-1", nil)
	require.NoError(t, err)

	_, err = manager.CreateSession("interview-1", nil)
	assert.ErrorIs(t, err, ErrSessionExists)
}

func TestCreateSessionWithInitialQuestion(t *testing.T) {
	manager, _ := newTestEngine(2, time.Minute)

	session, err := manager.CreateSession("interview-1", &Question{ID: "q-7", Title: "LRU Cache"})
	require.NoError(t, err)

	summary := session.Summary()
	require.NotNil(t, summary.Question)
	assert.Equal(t, "q-7", summary.Question.ID)
	assert.Equal(t, "", summary.Document)
	assert.Equal(t, 0, summary.Version)
}

func TestRegisterParticipantUnknownSession(t *testing.T) {
	manager, _ := newTestEngine(2, time.Minute)

	_, _, err := manager.RegisterParticipant("nope", "alice", "Alice", &fakeConn{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCloseSessionClosesAllConnections(t *testing.T) {
	manager, _ := newTestEngine(2, time.Minute)
	session, alice, bob := newPairedSession(t, manager)

	// One connection already closed: its failing Close must not block the
	// teardown of the rest.
	require.NoError(t, alice.Close())

	manager.CloseSession(session.ID())

	assert.Nil(t, manager.GetSession(session.ID()))
	assert.True(t, bob.isClosed())
}

func TestCloseSessionIsIdempotent(t *testing.T) {
	manager, _ := newTestEngine(2, time.Minute)
	session, _, _ := newPairedSession(t, manager)

	manager.CloseSession(session.ID())
	manager.CloseSession(session.ID())

	assert.Nil(t, manager.GetSession(session.ID()))
}

func TestRemovingLastParticipantDeletesSession(t *testing.T) {
	manager, _ := newTestEngine(2, time.Minute)
	session, _, _ := newPairedSession(t, manager)

	manager.RemoveParticipant(session.ID(), "alice")
	assert.NotNil(t, manager.GetSession(session.ID()))

	manager.RemoveParticipant(session.ID(), "bob")
	assert.Nil(t, manager.GetSession(session.ID()))
}

func TestLifecycleRoutingToMissingSessionIsBenign(t *testing.T) {
	manager, _ := newTestEngine(2, time.Minute)

	// Disconnect and reconnect racing a teardown are expected; neither may
	// error or panic.
	manager.HandleDisconnect("gone", "alice")
	assert.NoError(t, manager.HandleReconnect("gone", "alice", &fakeConn{}))
	manager.RemoveParticipant("gone", "alice")
}

func TestGraceTimerFiringAfterCloseIsNoOp(t *testing.T) {
	manager, _ := newTestEngine(2, 30*time.Millisecond)
	session, _, bob := newPairedSession(t, manager)

	session.HandleDisconnect("alice")

	// Mutual end races the grace timer: the session goes away first.
	manager.CloseSession(session.ID())

	time.Sleep(80 * time.Millisecond)

	// The stale timer must not have produced a timeout broadcast.
	assert.Equal(t, 0, bob.countOfType(t, MessageTypeSessionEnded))
	assert.Nil(t, manager.GetSession(session.ID()))
}

func TestListSessions(t *testing.T) {
	manager, _ := newTestEngine(2, time.Minute)

	_, err := manager.CreateSession("a", nil)
	require.NoError(t, err)
	_, err = manager.CreateSession("b", &Question{ID: "q-1"})
	require.NoError(t, err)

	summaries := manager.ListSessions()
	require.Len(t, summaries, 2)

	ids := map[string]bool{}
	for _, s := range summaries {
		ids[s.ID] = true
	}
	assert.True(t, ids["a"])
	assert.True(t, ids["b"])
}

func TestSessionsAreIndependent(t *testing.T) {
	manager, _ := newTestEngine(2, time.Minute)

	one, _, _ := newPairedSession(t, manager)
	two, _, _ := newPairedSession(t, manager)

	_, err := one.ApplyOperation("alice", Operation{Type: OperationInsert, Index: 0, Text: "left"})
	require.NoError(t, err)
	_, err = two.ApplyOperation("alice", Operation{Type: OperationInsert, Index: 0, Text: "right"})
	require.NoError(t, err)

	assert.Equal(t, "left", one.Summary().Document)
	assert.Equal(t, "right", two.Summary().Document)
}
