package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxSessionIDLen = 128

var (
	ErrSessionIDEmpty   = errors.New("session id empty")
	ErrSessionIDTooLong = errors.New("session id too long")
)

// SessionID is the routing key of a relay session. It is assigned once and
// never changes across suspensions.
type SessionID string

func ParseSessionID(s string) (SessionID, error) {
	if len(s) == 0 {
		return "", ErrSessionIDEmpty
	}
	if len(s) > MaxSessionIDLen {
		return "", ErrSessionIDTooLong
	}
	return SessionID(s), nil
}

// NewSessionID is a tiny helper for callers that mint sessions server side.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}
