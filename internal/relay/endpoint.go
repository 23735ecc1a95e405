// Package relay brokers negotiation messages between the host and the
// viewer of one session.
//
// A Relay owns the role slots of a single session. It never trusts its own
// memory to survive: every endpoint carries a persisted domain.Attachment
// and Recover rebuilds the slots from the live endpoints after a cold
// start. The Manager hosts one Hub of live endpoints per session id and
// suspends idle relays.
package relay

// CloseNormal is the WebSocket normal closure code used for every
// relay-initiated close.
const CloseNormal = 1000

const (
	ReasonSessionMismatch   = "Session ID mismatch"
	ReasonInvalidAttachment = "Invalid attachment"
	ReasonDuplicateRole     = "Duplicate role connection"
	ReasonReplaced          = "Replaced by newer connection"
)

// Endpoint is a live bidirectional message channel bound to one role of one
// session. Implementations are owned by the transport adapter.
type Endpoint interface {
	ID() string
	// Send queues data for delivery. It must not block.
	Send(data []byte) error
	Close(code int, reason string)
	IsOpen() bool
	// Attachment returns the persisted identity, or nil when none was set.
	Attachment() []byte
	SetAttachment([]byte)
}

// EndpointSource enumerates the endpoints currently live for a session, in
// the order they were accepted.
type EndpointSource interface {
	Endpoints() []Endpoint
}
