package orch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned to producers when no generation is live.
	ErrNotConnected  = errors.New("not connected")
	ErrSuperseded    = errors.New("superseded by a newer connect")
	ErrDisconnected  = errors.New("disconnected")
	ErrControlClosed = errors.New("control channel closed")
)

// LinkOpenError: the signaling link could not be opened. Terminal.
type LinkOpenError struct{ Err error }

func (e *LinkOpenError) Error() string { return fmt.Sprintf("open signaling link: %v", e.Err) }
func (e *LinkOpenError) Unwrap() error { return e.Err }

// LinkRuntimeError: the signaling link failed or closed mid-session. Terminal.
type LinkRuntimeError struct{ Err error }

func (e *LinkRuntimeError) Error() string {
	if e.Err == nil {
		return "signaling link closed"
	}
	return fmt.Sprintf("signaling link: %v", e.Err)
}
func (e *LinkRuntimeError) Unwrap() error { return e.Err }

// NegotiationError wraps a failed description or ICE operation.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string { return fmt.Sprintf("negotiation %s: %v", e.Op, e.Err) }
func (e *NegotiationError) Unwrap() error { return e.Err }

// ControlChannelError ends one control channel session; the loop retries.
type ControlChannelError struct{ Err error }

func (e *ControlChannelError) Error() string { return fmt.Sprintf("control channel: %v", e.Err) }
func (e *ControlChannelError) Unwrap() error { return e.Err }

// PeerError carries an error message sent by the peer. Terminal.
type PeerError struct{ Message string }

func (e *PeerError) Error() string { return fmt.Sprintf("peer error: %s", e.Message) }

// TransportError: the transport reached a terminal state. Terminal.
type TransportError struct {
	State ConnState
	Err   error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport %s", e.State)
}
func (e *TransportError) Unwrap() error { return e.Err }
