package api

import "errors"

// Errors reported back to clients. All of them are advisory: they are
// returned to the acting connection as an ERROR message and never crash
// the session or the process.
var (
	// ErrInvalidOperation indicates a malformed edit (e.g. a negative or
	// missing index). Nothing is mutated.
	ErrInvalidOperation = errors.New("invalid operation supplied")

	// ErrUnsupportedOperation indicates an operation kind the document
	// model does not understand.
	ErrUnsupportedOperation = errors.New("unsupported operation type")

	// ErrSessionFull is returned when a new user tries to join a session
	// that is already at capacity.
	ErrSessionFull = errors.New("session is full")

	// ErrSessionExists is returned when creating a session with an id that
	// collides with a live session.
	ErrSessionExists = errors.New("session with the same id already exists")

	// ErrSessionNotFound is returned when an action targets a session that
	// is not in the registry.
	ErrSessionNotFound = errors.New("session not found")

	// ErrParticipantNotFound is returned when a reconnect targets a user
	// that never joined the session.
	ErrParticipantNotFound = errors.New("participant does not exist in this session")

	// ErrQuestionMissingID is returned for a question proposal without an id.
	ErrQuestionMissingID = errors.New("question proposal must contain an id")
)
