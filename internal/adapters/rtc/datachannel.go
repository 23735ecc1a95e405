package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/remoterg/internal/app/orch"
)

const messageBuffer = 256

// DataChannel exposes a pion data channel as an orch.ControlChannel.
type DataChannel struct {
	dc *webrtc.DataChannel

	opened chan struct{}
	closed chan struct{}
	msgs   chan orch.Frame

	openOnce  sync.Once
	closeOnce sync.Once
	mu        sync.RWMutex
	finished  bool
}

func newDataChannel(dc *webrtc.DataChannel) *DataChannel {
	c := &DataChannel{
		dc:     dc,
		opened: make(chan struct{}),
		closed: make(chan struct{}),
		msgs:   make(chan orch.Frame, messageBuffer),
	}
	dc.OnOpen(func() { c.openOnce.Do(func() { close(c.opened) }) })
	dc.OnClose(c.finish)
	dc.OnError(func(error) { c.finish() })
	dc.OnMessage(func(m webrtc.DataChannelMessage) {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.finished {
			return
		}
		select {
		case c.msgs <- orch.Frame{Binary: !m.IsString, Data: m.Data}:
		case <-c.closed:
		}
	})
	return c
}

func (c *DataChannel) Label() string               { return c.dc.Label() }
func (c *DataChannel) Opened() <-chan struct{}     { return c.opened }
func (c *DataChannel) Closed() <-chan struct{}     { return c.closed }
func (c *DataChannel) Messages() <-chan orch.Frame { return c.msgs }

func (c *DataChannel) SendText(data []byte) error {
	return c.dc.SendText(string(data))
}

func (c *DataChannel) Close() error {
	err := c.dc.Close()
	c.finish()
	return err
}

func (c *DataChannel) finish() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		c.finished = true
		close(c.msgs)
		c.mu.Unlock()
	})
}
