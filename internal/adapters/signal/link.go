package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dkeye/remoterg/internal/app/orch"
	"github.com/dkeye/remoterg/internal/domain"
	"github.com/dkeye/remoterg/internal/signaling"
)

const linkBuffer = 64

// Dialer opens signaling links to a relay's /ws endpoint.
type Dialer struct {
	URL       string
	SessionID domain.SessionID
	Role      domain.Role
	Header    http.Header
	Logger    zerolog.Logger
}

// Endpoint is the full upgrade URL including the routing query.
func (d Dialer) Endpoint() (string, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("session_id", string(d.SessionID))
	q.Set("role", string(d.Role))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d Dialer) Dial(ctx context.Context) (orch.SignalLink, error) {
	endpoint, err := d.Endpoint()
	if err != nil {
		return nil, err
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	l := newLink(ws, d.Logger)
	go l.readPump()
	return l, nil
}

// Link is the client side of a signaling connection.
type Link struct {
	conn   *websocket.Conn
	in     chan signaling.Message
	logger zerolog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	err       error
	closed    chan struct{}
	closeOnce sync.Once
}

func newLink(ws *websocket.Conn, logger zerolog.Logger) *Link {
	return &Link{
		conn:   ws,
		in:     make(chan signaling.Message, linkBuffer),
		closed: make(chan struct{}),
		logger: logger.With().Str("module", "signal.link").Logger(),
	}
}

func (l *Link) Send(ctx context.Context, m signaling.Message) error {
	data, err := signaling.Encode(m)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	select {
	case <-l.closed:
		return ErrConnClosed
	default:
	}
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *Link) Messages() <-chan signaling.Message { return l.in }

func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
		err = l.conn.Close()
	})
	return err
}

func (l *Link) readPump() {
	defer close(l.in)
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			l.finish(err)
			return
		}
		m, err := signaling.Decode(data)
		if err != nil {
			l.logger.Warn().Err(err).Msg("dropping signaling message")
			continue
		}
		select {
		case l.in <- m:
		case <-l.closed:
			l.finish(ErrConnClosed)
			return
		}
	}
}

func (l *Link) finish(err error) {
	select {
	case <-l.closed:
		err = ErrConnClosed
	default:
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		l.logger.Info().Int("code", ce.Code).Str("reason", ce.Text).Msg("relay closed link")
	} else if !errors.Is(err, ErrConnClosed) {
		l.logger.Warn().Err(err).Msg("link read error")
	}
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}
