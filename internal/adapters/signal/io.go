package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/remoterg/internal/domain"
	"github.com/dkeye/remoterg/internal/relay"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *Conn) {
	ticker := time.NewTicker(ctl.pingPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", c.id).Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", c.id).Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", c.id).Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(sid domain.SessionID, c *Conn) {
	pongWait := ctl.pingPeriod() * 10 / 9
	c.conn.SetReadLimit(ctl.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			ctl.finish(sid, c, err)
			return
		}
		ctl.Relays.Message(sid, c, data)
	}
}

// finish reports why the read side ended. Close frames, including the
// synthesized 1006, are closes; anything else on a socket we did not close
// ourselves is an error.
func (ctl *Controller) finish(sid domain.SessionID, c *Conn, err error) {
	locallyClosed := !c.IsOpen()
	c.markClosed()

	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce):
		log.Info().Str("module", "signal").Str("session_id", string(sid)).Str("conn", c.id).
			Int("code", ce.Code).Str("reason", ce.Text).Msg("peer closed")
		ctl.Relays.Detach(sid, c, ce.Code, ce.Text)
	case locallyClosed:
		ctl.Relays.Detach(sid, c, relay.CloseNormal, "closed by relay")
	default:
		log.Warn().Err(err).Str("module", "signal").Str("session_id", string(sid)).Str("conn", c.id).Msg("readPump read error")
		ctl.Relays.Fault(sid, c, err)
	}
}
