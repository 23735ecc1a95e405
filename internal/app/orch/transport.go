package orch

import (
	"context"
	"time"

	"github.com/dkeye/remoterg/internal/media"
	"github.com/dkeye/remoterg/internal/signaling"
)

// SignalLink is an open signaling connection to the relay.
type SignalLink interface {
	Send(ctx context.Context, m signaling.Message) error
	// Messages yields inbound messages in arrival order. It is closed when
	// the link ends; Err then reports why.
	Messages() <-chan signaling.Message
	Err() error
	// Close is idempotent.
	Close() error
}

type LinkDialer interface {
	Dial(ctx context.Context) (SignalLink, error)
}

// ConnState mirrors a transport connection or ICE state.
type ConnState string

const (
	StateNew          ConnState = "new"
	StateChecking     ConnState = "checking"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateCompleted    ConnState = "completed"
	StateDisconnected ConnState = "disconnected"
	StateFailed       ConnState = "failed"
	StateClosed       ConnState = "closed"
)

// Terminal reports whether the transport can no longer carry media.
func (s ConnState) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// Stats is a simplified sample of the transport's statistics.
type Stats struct {
	At              time.Time     `json:"at"`
	RoundTripTime   time.Duration `json:"rtt"`
	Jitter          float64       `json:"jitter"`
	PacketsReceived uint32        `json:"packets_received"`
	PacketsLost     int32         `json:"packets_lost"`
	BytesReceived   uint64        `json:"bytes_received"`
	FramesPerSecond float64       `json:"fps"`
	FrameWidth      uint32        `json:"frame_width"`
	FrameHeight     uint32        `json:"frame_height"`
	CandidatePair   string        `json:"candidate_pair,omitempty"`
}

// Transport is one negotiated media session. Event channels are closed
// when the transport is closed.
type Transport interface {
	// SetCodecPreference restricts the video codec offered. Unsupported
	// codecs return an error and leave the defaults in place.
	SetCodecPreference(codec string) error
	CreateOffer(ctx context.Context) (string, error)
	SetAnswer(ctx context.Context, sdp string) error
	AddICECandidate(c signaling.Candidate) error

	LocalCandidates() <-chan signaling.Candidate
	ConnectionStates() <-chan ConnState
	ICEStates() <-chan ConnState
	Tracks() <-chan media.Track

	OpenControlChannel(label string) (ControlChannel, error)
	Stats(ctx context.Context) (Stats, error)
	// Alive is false once the transport reached a terminal state or was closed.
	Alive() bool
	// Close is idempotent.
	Close() error
}

type TransportFactory interface {
	NewTransport(ctx context.Context) (Transport, error)
}

// Frame is one control channel message.
type Frame struct {
	Binary bool
	Data   []byte
}

// ControlChannel is an ordered message channel over the transport.
type ControlChannel interface {
	Label() string
	// Opened is closed once the channel can carry messages.
	Opened() <-chan struct{}
	// Closed is closed once the channel ended, opened or not.
	Closed() <-chan struct{}
	// Messages is closed after Closed.
	Messages() <-chan Frame
	SendText(data []byte) error
	Close() error
}
