package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/remoterg/internal/domain"
	"github.com/dkeye/remoterg/internal/signaling"
)

var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Message is a parsed signaling message. Fields are kept raw so forwarding
// never alters anything the relay does not own.
type Message map[string]json.RawMessage

// ParseMessage decodes raw into a Message and returns its type tag.
func ParseMessage(raw []byte) (Message, string, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m == nil {
		return nil, "", fmt.Errorf("%w: not an object", ErrMalformedMessage)
	}
	var typ string
	if err := json.Unmarshal(m["type"], &typ); err != nil {
		return nil, "", fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	if !signaling.KnownType(typ) {
		return nil, typ, fmt.Errorf("%w: %q", ErrUnknownMessageType, typ)
	}
	return m, typ, nil
}

// Tag returns a copy of m stamped with the canonical session id and a
// negotiation id, which defaults to signaling.DefaultNegotiationID.
func Tag(m Message, id domain.SessionID) Message {
	out := make(Message, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	out["session_id"] = mustRaw(string(id))

	var negotiation string
	if raw, ok := m["negotiation_id"]; !ok || json.Unmarshal(raw, &negotiation) != nil || negotiation == "" {
		out["negotiation_id"] = mustRaw(signaling.DefaultNegotiationID)
	}
	return out
}

// Target is the role a message sent by from is forwarded to.
func Target(from domain.Role) domain.Role {
	return from.Opposite()
}

// Route parses, tags and addresses a message sent by from.
func Route(from domain.Role, id domain.SessionID, raw []byte) (domain.Role, []byte, error) {
	m, _, err := ParseMessage(raw)
	if err != nil {
		return "", nil, err
	}
	out, err := json.Marshal(Tag(m, id))
	if err != nil {
		return "", nil, fmt.Errorf("encode routed message: %w", err)
	}
	return Target(from), out, nil
}

func mustRaw(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
