package media

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateMuted
	SinkStateDelete
)

// Sink consumes RTP packets. pion's h264writer and oggwriter satisfy it.
type Sink interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// Output is one sink attached to a forwarder.
type Output struct {
	Name string
	Sink Sink

	state   atomic.Int32
	written atomic.Uint64
}

func NewOutput(name string, sink Sink) *Output {
	return &Output{Name: name, Sink: sink}
}

func (o *Output) State() SinkState { return SinkState(o.state.Load()) }

func (o *Output) MarkOk()     { o.state.Store(int32(SinkStateOk)) }
func (o *Output) MarkMuted()  { o.state.Store(int32(SinkStateMuted)) }
func (o *Output) MarkDelete() { o.state.Store(int32(SinkStateDelete)) }

// Written is the number of packets delivered to the sink.
func (o *Output) Written() uint64 { return o.written.Load() }
