// Package media aggregates the remote tracks of one connection into a
// composite stream and forwards their RTP packets to local sinks.
package media

import (
	"github.com/pion/rtp"
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is a remote media track as delivered by the transport.
type Track interface {
	ID() string
	StreamID() string
	Kind() Kind
	// MimeType is the negotiated codec, e.g. "video/H264".
	MimeType() string
	// ReadRTP blocks until the next packet; it fails once the track ends.
	ReadRTP() (*rtp.Packet, error)
}
