// Package signaling defines the negotiation messages exchanged between a
// host and a viewer through the relay.
package signaling

import (
	"encoding/json"
	"fmt"
)

const (
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice_candidate"
	TypeError        = "error"
)

// DefaultNegotiationID is stamped on forwarded messages that carry none.
const DefaultNegotiationID = "default"

// KnownType reports whether t is one of the negotiation message types.
func KnownType(t string) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate, TypeError:
		return true
	}
	return false
}

// Message is the wire form of a negotiation message. Only the fields that
// belong to Type are set.
type Message struct {
	Type string `json:"type"`

	SDP   string `json:"sdp,omitempty"`
	Codec string `json:"codec,omitempty"`

	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index,omitempty"`

	Message string `json:"message,omitempty"`

	SessionID     string `json:"session_id,omitempty"`
	NegotiationID string `json:"negotiation_id,omitempty"`
}

// Candidate is a trickled ICE candidate.
type Candidate struct {
	Candidate     string
	SDPMid        *string
	SDPMLineIndex *uint16
}

func Offer(sdp, codec string) Message {
	return Message{Type: TypeOffer, SDP: sdp, Codec: codec}
}

func Answer(sdp string) Message {
	return Message{Type: TypeAnswer, SDP: sdp}
}

func ICECandidate(c Candidate) Message {
	return Message{
		Type:          TypeICECandidate,
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

func Error(msg string) Message {
	return Message{Type: TypeError, Message: msg}
}

// AsCandidate extracts the candidate payload of an ice_candidate message.
func (m Message) AsCandidate() Candidate {
	return Candidate{
		Candidate:     m.Candidate,
		SDPMid:        m.SDPMid,
		SDPMLineIndex: m.SDPMLineIndex,
	}
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode signaling message: %w", err)
	}
	if !KnownType(m.Type) {
		return Message{}, fmt.Errorf("decode signaling message: unknown type %q", m.Type)
	}
	return m, nil
}

func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode signaling message: %w", err)
	}
	return b, nil
}
