package api

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const initialDocument = ""

type pendingQuestionChange struct {
	question  Question
	approvals map[string]struct{}
}

// CollaborationSession owns one collaborative room: the document text,
// the append-only operation log, the participant set, the question-change
// and session-end agreement protocols, and the reconnection grace timers.
//
// All state is guarded by a single mutex so operations, proposals and
// lifecycle events for one session are processed one at a time. Sessions
// never share mutable state with each other. The document is always the
// fold of the operation log over the empty string; the cached value is a
// memoized projection, the log is the source of truth.
type CollaborationSession struct {
	id              string
	maxParticipants int
	graceTimeout    time.Duration

	mu                 sync.Mutex
	participants       map[string]*Participant
	document           string
	operations         []Operation
	question           *Question
	pendingChange      *pendingQuestionChange
	pendingClosure     map[string]struct{}
	reconnectionTimers map[string]*time.Timer

	transformer *OperationTransformer
	broadcaster *Broadcaster
}

func newCollaborationSession(id string, question *Question, maxParticipants int, graceTimeout time.Duration, broadcaster *Broadcaster) *CollaborationSession {
	return &CollaborationSession{
		id:                 id,
		maxParticipants:    maxParticipants,
		graceTimeout:       graceTimeout,
		participants:       make(map[string]*Participant),
		document:           initialDocument,
		question:           question,
		pendingClosure:     make(map[string]struct{}),
		reconnectionTimers: make(map[string]*time.Timer),
		transformer:        NewOperationTransformer(),
		broadcaster:        broadcaster,
	}
}

// ID returns the session id.
func (s *CollaborationSession) ID() string {
	return s.id
}

// Summary returns the public view of the session.
func (s *CollaborationSession) Summary() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *CollaborationSession) summaryLocked() SessionSummary {
	participants := make([]ParticipantSummary, 0, len(s.participants))
	for _, p := range s.participants {
		participants = append(participants, ParticipantSummary{
			UserID:    p.UserID,
			Username:  p.Username,
			Connected: p.IsConnected(),
		})
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].UserID < participants[j].UserID
	})

	return SessionSummary{
		ID:           s.id,
		Question:     s.question,
		Participants: participants,
		Document:     s.document,
		Version:      len(s.operations),
	}
}

// HasParticipant reports whether the user ever joined and is still known.
func (s *CollaborationSession) HasParticipant(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.participants[userID]
	return ok
}

// ParticipantCount returns the current participant count.
func (s *CollaborationSession) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

// AddParticipant creates or reuses the participant record for the user
// and attaches the connection if one is supplied, cancelling any running
// grace timer. Joining a full session as a new user fails with
// ErrSessionFull; a known user rejoining is never rejected.
func (s *CollaborationSession) AddParticipant(userID, username string, conn Connection) (*Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participant, known := s.participants[userID]
	if !known {
		if len(s.participants) >= s.maxParticipants {
			return nil, ErrSessionFull
		}
		participant = newParticipant(userID, username)
		s.participants[userID] = participant
	}

	if conn != nil {
		participant.AttachConnection(conn)
		s.clearReconnectionTimerLocked(userID)
	}

	return participant, nil
}

// RemoveParticipant drops the user from the session, cancelling their
// grace timer and withdrawing any session-end request they had pending.
func (s *CollaborationSession) RemoveParticipant(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearReconnectionTimerLocked(userID)
	delete(s.pendingClosure, userID)
	delete(s.participants, userID)
}

// ApplyOperation transforms the edit against the log from its declared
// base version, applies it to the document, appends it to the log and
// broadcasts OPERATION_APPLIED to everyone. If the transform changed the
// operation's index, kind or delete length, an OPERATION_CONFLICT is
// additionally broadcast; the conflict signal is informational and the
// edit is never rejected.
func (s *CollaborationSession) ApplyOperation(userID string, operation Operation) (Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transformed, err := s.transformer.Transform(operation, s.operations, operation.BaseVersion)
	if err != nil {
		return Operation{}, err
	}

	conflict := hasConflict(operation, transformed)

	applied := transformed
	applied.UserID = userID
	applied.Version = len(s.operations) + 1

	document, err := applyToDocument(s.document, applied)
	if err != nil {
		return Operation{}, err
	}

	s.document = document
	s.operations = append(s.operations, applied)
	metricOperationsApplied.Inc()

	s.broadcaster.deliverLocked(s, "", Envelope{
		Type: MessageTypeOperationApplied,
		Payload: OperationAppliedPayload{
			UserID:    userID,
			Operation: applied,
			Document:  s.document,
		},
	})

	if conflict {
		metricOperationConflicts.Inc()
		s.broadcaster.deliverLocked(s, "", Envelope{
			Type: MessageTypeOperationConflict,
			Payload: OperationConflictPayload{
				UserID:    userID,
				Operation: applied,
			},
		})
	}

	return applied, nil
}

// HandleDisconnect clears the user's connection, notifies the other
// participants and starts the reconnection grace timer. Unknown users are
// ignored: a disconnect racing a teardown is expected and harmless.
func (s *CollaborationSession) HandleDisconnect(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participant, ok := s.participants[userID]
	if !ok {
		return
	}

	participant.DetachConnection()

	s.broadcaster.deliverLocked(s, userID, Envelope{
		Type: MessageTypePartnerDisconnected,
		Payload: PartnerDisconnectedPayload{
			UserID:    userID,
			TimeoutMs: s.graceTimeout.Milliseconds(),
		},
	})

	s.clearReconnectionTimerLocked(userID)
	s.reconnectionTimers[userID] = time.AfterFunc(s.graceTimeout, func() {
		s.graceExpired(userID)
	})
}

// HandleReconnect reattaches the connection for a user inside the grace
// window, cancels the timer and tells the others.
func (s *CollaborationSession) HandleReconnect(userID string, conn Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	participant, ok := s.participants[userID]
	if !ok {
		return ErrParticipantNotFound
	}

	participant.AttachConnection(conn)
	s.clearReconnectionTimerLocked(userID)

	s.broadcaster.deliverLocked(s, userID, Envelope{
		Type:    MessageTypePartnerReconnected,
		Payload: PartnerPayload{UserID: userID},
	})

	return nil
}

// graceExpired runs when a reconnection grace timer fires. The timer map
// entry is the liveness token: teardown and reconnection both remove it,
// so a stale fire against a cancelled timer or an already-closed session
// is a no-op.
func (s *CollaborationSession) graceExpired(userID string) {
	s.mu.Lock()

	if _, live := s.reconnectionTimers[userID]; !live {
		s.mu.Unlock()
		return
	}
	delete(s.reconnectionTimers, userID)

	if participant, ok := s.participants[userID]; ok && participant.IsConnected() {
		s.mu.Unlock()
		return
	}

	s.pendingClosure = make(map[string]struct{})
	s.broadcaster.deliverLocked(s, "", Envelope{
		Type:    MessageTypeSessionEnded,
		Payload: SessionEndedPayload{Reason: "timeout", UserID: userID},
	})
	s.mu.Unlock()

	metricSessionTimeouts.Inc()
	s.broadcaster.CloseSession(s.id)
}

// RequestQuestionChange records a proposal or approval for switching the
// shared question. The first proposal creates the pending change with the
// proposer's approval; a proposal for a different question id supersedes
// the pending one. The change commits once approvals reach every current
// participant (bounded by the session capacity).
func (s *CollaborationSession) RequestQuestionChange(userID string, proposed Question) (QuestionChangeStatus, error) {
	if proposed.ID == "" {
		return QuestionChangeStatus{}, ErrQuestionMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingChange != nil && s.pendingChange.question.ID != proposed.ID {
		s.pendingChange = nil
	}

	if s.pendingChange == nil {
		s.pendingChange = &pendingQuestionChange{
			question:  proposed,
			approvals: map[string]struct{}{userID: {}},
		}

		s.broadcaster.deliverLocked(s, userID, Envelope{
			Type: MessageTypeQuestionChangeProposed,
			Payload: QuestionChangeProposedPayload{
				Question:   proposed,
				ProposedBy: userID,
			},
		})

		return QuestionChangeStatus{Status: StatusPending}, nil
	}

	s.pendingChange.approvals[userID] = struct{}{}

	required := len(s.participants)
	if s.maxParticipants < required {
		required = s.maxParticipants
	}

	if len(s.pendingChange.approvals) >= required {
		question := s.pendingChange.question
		s.question = &question
		s.pendingChange = nil

		s.broadcaster.deliverLocked(s, "", Envelope{
			Type:    MessageTypeQuestionChanged,
			Payload: QuestionChangedPayload{Question: question},
		})

		return QuestionChangeStatus{Status: StatusAccepted, Question: &question}, nil
	}

	return QuestionChangeStatus{Status: StatusPending}, nil
}

// RejectQuestionChange clears any pending proposal and tells everyone.
// Rejecting with nothing pending is a no-op reporting idle.
func (s *CollaborationSession) RejectQuestionChange(userID string) QuestionChangeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingChange == nil {
		return QuestionChangeStatus{Status: StatusIdle}
	}

	rejected := s.pendingChange.question
	s.pendingChange = nil

	s.broadcaster.deliverLocked(s, "", Envelope{
		Type: MessageTypeQuestionChangeRejected,
		Payload: QuestionChangeRejectedPayload{
			RejectedBy: userID,
			Question:   rejected,
		},
	})

	return QuestionChangeStatus{Status: StatusRejected}
}

// RequestSessionEnd records the user's request to end the session. Once
// every current participant has requested it, SESSION_ENDED is broadcast
// with reason "mutual" and the caller tears the session down.
func (s *CollaborationSession) RequestSessionEnd(userID string) SessionEndStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingClosure[userID] = struct{}{}

	if len(s.pendingClosure) >= len(s.participants) {
		s.broadcaster.deliverLocked(s, "", Envelope{
			Type:    MessageTypeSessionEnded,
			Payload: SessionEndedPayload{Reason: "mutual"},
		})
		return SessionEndStatus{Status: StatusEnded}
	}

	s.broadcaster.deliverLocked(s, userID, Envelope{
		Type:    MessageTypePartnerEndRequested,
		Payload: PartnerPayload{UserID: userID},
	})

	return SessionEndStatus{Status: StatusPending}
}

// CancelSessionEndRequest withdraws one user's end request without
// notifying anyone.
func (s *CollaborationSession) CancelSessionEndRequest(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingClosure, userID)
}

// teardown stops every grace timer and closes every live connection.
// Called by the registry when the session is removed; individual close
// failures are swallowed so one bad connection cannot block the rest.
func (s *CollaborationSession) teardown() {
	s.mu.Lock()
	for userID, timer := range s.reconnectionTimers {
		timer.Stop()
		delete(s.reconnectionTimers, userID)
	}

	conns := make([]Connection, 0, len(s.participants))
	for _, participant := range s.participants {
		if participant.IsConnected() {
			conns = append(conns, participant.conn)
		}
		participant.DetachConnection()
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (s *CollaborationSession) clearReconnectionTimerLocked(userID string) {
	if timer, ok := s.reconnectionTimers[userID]; ok {
		timer.Stop()
		delete(s.reconnectionTimers, userID)
	}
}

// hasConflict reports whether the transform moved the operation: a
// changed index, kind, or (for deletes) length.
func hasConflict(original, transformed Operation) bool {
	if original.Index != transformed.Index {
		return true
	}
	if original.Type != transformed.Type {
		return true
	}
	if original.Type == OperationDelete && original.Length != transformed.Length {
		return true
	}
	return false
}

// applyToDocument splices the operation into the document. Indices are
// byte offsets and are clamped to the document bounds, matching the
// transformer's positional model.
func applyToDocument(document string, op Operation) (string, error) {
	switch op.Type {
	case OperationInsert:
		index := clamp(op.Index, 0, len(document))
		return document[:index] + op.Text + document[index:], nil
	case OperationDelete:
		start := clamp(op.Index, 0, len(document))
		end := clamp(op.Index+op.Length, start, len(document))
		return document[:start] + document[end:], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedOperation, op.Type)
	}
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
