package uuidgen

import (
	"fmt"

	"github.com/google/uuid"
)

// New generates a random UUIDv4.
func New() (uuid.UUID, error) {
	return uuid.NewRandom()
}

// MustNew is like New but panics on error. Should only be used where UUID
// generation failure is unrecoverable.
func MustNew() uuid.UUID {
	id, err := New()
	if err != nil {
		panic(fmt.Sprintf("failed to generate UUID: %v", err))
	}
	return id
}

// NewString generates a random UUIDv4 string for session identifiers.
func NewString() string {
	return MustNew().String()
}
