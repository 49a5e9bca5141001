package api

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies a websocket message. The inbound set is closed:
// ParseClientMessage dispatches over every known kind and rejects the
// rest, so an unhandled message can only ever produce an ERROR reply,
// never a silent drop.
type MessageType string

const (
	// Inbound message types
	MessageTypeAuthenticate      MessageType = "AUTHENTICATE"
	MessageTypeOperation         MessageType = "OPERATION"
	MessageTypeCursorUpdate      MessageType = "CURSOR_UPDATE"
	MessageTypeQuestionProposal  MessageType = "QUESTION_PROPOSAL"
	MessageTypeQuestionResponse  MessageType = "QUESTION_RESPONSE"
	MessageTypeEndSessionRequest MessageType = "END_SESSION_REQUEST"
	MessageTypeEndSessionCancel  MessageType = "END_SESSION_CANCEL"
	MessageTypeHeartbeat         MessageType = "HEARTBEAT"

	// Outbound message types
	MessageTypeAuthenticated          MessageType = "AUTHENTICATED"
	MessageTypePartnerJoined          MessageType = "PARTNER_JOINED"
	MessageTypeOperationApplied       MessageType = "OPERATION_APPLIED"
	MessageTypeOperationConflict      MessageType = "OPERATION_CONFLICT"
	MessageTypeCursorUpdated          MessageType = "CURSOR_UPDATED"
	MessageTypeQuestionChangeProposed MessageType = "QUESTION_CHANGE_PROPOSED"
	MessageTypeQuestionChanged        MessageType = "QUESTION_CHANGED"
	MessageTypeQuestionChangeRejected MessageType = "QUESTION_CHANGE_REJECTED"
	MessageTypeQuestionChangeStatus   MessageType = "QUESTION_CHANGE_STATUS"
	MessageTypePartnerEndRequested    MessageType = "PARTNER_END_SESSION_REQUESTED"
	MessageTypeSessionEndStatus       MessageType = "SESSION_END_STATUS"
	MessageTypeSessionEnded           MessageType = "SESSION_ENDED"
	MessageTypePartnerDisconnected    MessageType = "PARTNER_DISCONNECTED"
	MessageTypePartnerReconnected     MessageType = "PARTNER_RECONNECTED"
	MessageTypeHeartbeatAck           MessageType = "HEARTBEAT_ACK"
	MessageTypeError                  MessageType = "ERROR"
)

// Envelope is the wire framing for every websocket message.
type Envelope struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

// Question is the shared problem a session works on.
type Question struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
}

// ParticipantSummary is the public view of one participant.
type ParticipantSummary struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Connected bool   `json:"connected"`
}

// SessionSummary is the public view of a session, returned on
// authentication, listing and creation. Version is the operation log
// length.
type SessionSummary struct {
	ID           string               `json:"id"`
	Question     *Question            `json:"question"`
	Participants []ParticipantSummary `json:"participants"`
	Document     string               `json:"document"`
	Version      int                  `json:"version"`
}

// Error is the JSON error shape for the HTTP surface.
type Error struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ClientMessage is the closed union of inbound websocket messages.
type ClientMessage interface {
	MessageType() MessageType
	Validate() error
}

// AuthenticateRequest joins (or rejoins) a session.
type AuthenticateRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
}

func (m *AuthenticateRequest) MessageType() MessageType { return MessageTypeAuthenticate }

func (m *AuthenticateRequest) Validate() error {
	if m.SessionID == "" || m.UserID == "" {
		return fmt.Errorf("invalid authentication payload")
	}
	return nil
}

// OperationInput is the wire form of an edit. Index is a pointer so a
// missing or non-numeric index is distinguishable from zero.
type OperationInput struct {
	Type        string `json:"type"`
	Index       *int   `json:"index"`
	Text        string `json:"text"`
	Length      int    `json:"length"`
	BaseVersion int    `json:"baseVersion"`
}

// ToOperation converts validated wire input into an engine operation.
func (in OperationInput) ToOperation() Operation {
	op := Operation{
		Type:        OperationType(in.Type),
		Text:        in.Text,
		Length:      in.Length,
		BaseVersion: in.BaseVersion,
	}
	if in.Index != nil {
		op.Index = *in.Index
	}
	return op
}

// OperationRequest carries one edit to apply.
type OperationRequest struct {
	Operation OperationInput `json:"operation"`
}

func (m *OperationRequest) MessageType() MessageType { return MessageTypeOperation }

func (m *OperationRequest) Validate() error {
	if m.Operation.Index == nil {
		return fmt.Errorf("%w: operation index must be a number", ErrInvalidOperation)
	}
	return nil
}

// CursorUpdateRequest relays cursor/selection state; the payload is
// opaque to the engine.
type CursorUpdateRequest struct {
	Cursor    json.RawMessage `json:"cursor,omitempty"`
	Selection json.RawMessage `json:"selection,omitempty"`
}

func (m *CursorUpdateRequest) MessageType() MessageType { return MessageTypeCursorUpdate }

func (m *CursorUpdateRequest) Validate() error { return nil }

// QuestionProposalRequest proposes switching the shared question.
type QuestionProposalRequest struct {
	Question Question `json:"question"`
}

func (m *QuestionProposalRequest) MessageType() MessageType { return MessageTypeQuestionProposal }

func (m *QuestionProposalRequest) Validate() error { return nil }

// QuestionResponseRequest accepts or rejects a pending proposal.
type QuestionResponseRequest struct {
	Accepted bool     `json:"accepted"`
	Question Question `json:"question"`
}

func (m *QuestionResponseRequest) MessageType() MessageType { return MessageTypeQuestionResponse }

func (m *QuestionResponseRequest) Validate() error { return nil }

// EndSessionRequest asks to end the session.
type EndSessionRequest struct{}

func (m *EndSessionRequest) MessageType() MessageType { return MessageTypeEndSessionRequest }

func (m *EndSessionRequest) Validate() error { return nil }

// EndSessionCancelRequest withdraws a previous end request.
type EndSessionCancelRequest struct{}

func (m *EndSessionCancelRequest) MessageType() MessageType { return MessageTypeEndSessionCancel }

func (m *EndSessionCancelRequest) Validate() error { return nil }

// HeartbeatRequest is a liveness probe.
type HeartbeatRequest struct{}

func (m *HeartbeatRequest) MessageType() MessageType { return MessageTypeHeartbeat }

func (m *HeartbeatRequest) Validate() error { return nil }

// ParseClientMessage parses an inbound websocket frame into its typed
// message. Unknown types and malformed payloads return an error; the
// gateway reports them back as ERROR without closing the connection.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var envelope struct {
		Type    MessageType     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unable to parse incoming message")
	}

	var msg ClientMessage
	switch envelope.Type {
	case MessageTypeAuthenticate:
		msg = &AuthenticateRequest{}
	case MessageTypeOperation:
		msg = &OperationRequest{}
	case MessageTypeCursorUpdate:
		msg = &CursorUpdateRequest{}
	case MessageTypeQuestionProposal:
		msg = &QuestionProposalRequest{}
	case MessageTypeQuestionResponse:
		msg = &QuestionResponseRequest{}
	case MessageTypeEndSessionRequest:
		msg = &EndSessionRequest{}
	case MessageTypeEndSessionCancel:
		msg = &EndSessionCancelRequest{}
	case MessageTypeHeartbeat:
		msg = &HeartbeatRequest{}
	default:
		return nil, fmt.Errorf("unknown message type: %s", envelope.Type)
	}

	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, msg); err != nil {
			return nil, fmt.Errorf("malformed %s payload", envelope.Type)
		}
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Outbound payloads.

// OperationAppliedPayload announces an applied edit together with the
// resulting document state.
type OperationAppliedPayload struct {
	UserID    string    `json:"userId"`
	Operation Operation `json:"operation"`
	Document  string    `json:"document"`
}

// OperationConflictPayload flags that the applied edit was transformed
// away from what its author sent. Informational only; the edit is never
// rejected.
type OperationConflictPayload struct {
	UserID    string    `json:"userId"`
	Operation Operation `json:"operation"`
}

// CursorUpdatedPayload relays another participant's cursor state.
type CursorUpdatedPayload struct {
	UserID    string          `json:"userId"`
	Cursor    json.RawMessage `json:"cursor,omitempty"`
	Selection json.RawMessage `json:"selection,omitempty"`
}

// PartnerPayload identifies a participant in join/leave notifications.
type PartnerPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// PartnerDisconnectedPayload tells the others how long the grace window
// for reconnection lasts.
type PartnerDisconnectedPayload struct {
	UserID    string `json:"userId"`
	TimeoutMs int64  `json:"timeoutMs"`
}

// QuestionChangeProposedPayload announces a pending question change.
type QuestionChangeProposedPayload struct {
	Question   Question `json:"question"`
	ProposedBy string   `json:"proposedBy"`
}

// QuestionChangedPayload announces a committed question change.
type QuestionChangedPayload struct {
	Question Question `json:"question"`
}

// QuestionChangeRejectedPayload announces a rejected proposal.
type QuestionChangeRejectedPayload struct {
	RejectedBy string   `json:"rejectedBy"`
	Question   Question `json:"question"`
}

// QuestionChangeStatus is the reply to the user driving the question
// change protocol.
type QuestionChangeStatus struct {
	Status   string    `json:"status"`
	Question *Question `json:"question,omitempty"`
}

// SessionEndStatus is the reply to the user driving the session end
// protocol.
type SessionEndStatus struct {
	Status string `json:"status"`
}

// SessionEndedPayload announces session teardown. Reason is "mutual" or
// "timeout"; UserID is set for timeouts to identify who never returned.
type SessionEndedPayload struct {
	Reason string `json:"reason"`
	UserID string `json:"userId,omitempty"`
}

// ErrorPayload carries an advisory error back to one connection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Protocol status values.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusIdle      = "idle"
	StatusEnded     = "ended"
	StatusCancelled = "cancelled"
)
