package signal

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const closeWriteWait = time.Second

// Conn is the server side of one relay endpoint. It implements
// relay.Endpoint on top of a gorilla connection; all writes except the
// close frame go through the write pump.
type Conn struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	attachment atomic.Pointer[[]byte]

	mu     sync.RWMutex
	closed bool
}

func NewConn(id string, ws *websocket.Conn, buffer int) *Conn {
	return &Conn{
		id:   id,
		conn: ws,
		send: make(chan []byte, buffer),
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues data without blocking. A full buffer is reported as
// ErrBackpressure and the frame is dropped.
func (c *Conn) Send(data []byte) error {
	return c.TrySend(data)
}

func (c *Conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close sends a close frame with code and reason, then tears the socket
// down. The read pump observes the teardown and reports the close.
func (c *Conn) Close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait)); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", c.id).Msg("close frame not sent")
	}
	_ = c.conn.Close()
}

func (c *Conn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *Conn) Attachment() []byte {
	if p := c.attachment.Load(); p != nil {
		return *p
	}
	return nil
}

func (c *Conn) SetAttachment(b []byte) {
	c.attachment.Store(&b)
}

// markClosed flags the connection closed without sending a close frame,
// used when the peer went away first.
func (c *Conn) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}
