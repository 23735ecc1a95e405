// Package signal carries relay signaling over WebSockets: the server-side
// endpoint the relay forwards between, and the client link the viewer
// dials.
package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/remoterg/internal/domain"
	"github.com/dkeye/remoterg/internal/relay"
)

const (
	defaultPingPeriod = 54 * time.Second
	sendBuffer        = 32
)

// Controller upgrades relay endpoints and pumps their frames into the
// relay manager.
type Controller struct {
	Relays     *relay.Manager
	Limiter    *UpgradeLimiter
	ReadLimit  int64
	PingPeriod time.Duration

	upgrader websocket.Upgrader
}

func NewController(relays *relay.Manager, limiter *UpgradeLimiter, readLimit int64, pingPeriod time.Duration) *Controller {
	return &Controller{
		Relays:     relays,
		Limiter:    limiter,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (ctl *Controller) pingPeriod() time.Duration {
	if ctl.PingPeriod <= 0 {
		return defaultPingPeriod
	}
	return ctl.PingPeriod
}

// HandleSignal validates the upgrade request, accepts the socket and binds
// it to its role. Rejections: 400 for a bad role or session id, 426 for a
// plain HTTP request, 429 when the role is being re-dialed too fast.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sid, err := domain.ParseSessionID(c.Query("session_id"))
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	role, err := domain.ParseRole(c.Query("role"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid role")
		return
	}
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.String(http.StatusUpgradeRequired, "Expected WebSocket upgrade")
		return
	}
	if !ctl.Limiter.Allow(string(sid) + "/" + string(role)) {
		c.String(http.StatusTooManyRequests, "Too many upgrade attempts")
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	conn := NewConn(uuid.NewString(), ws, sendBuffer)
	log.Info().Str("module", "signal").Str("session_id", string(sid)).Str("role", string(role)).
		Str("conn", conn.id).Msg("new WS connection")

	if err := ctl.Relays.Attach(sid, role, conn); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("attach endpoint")
		conn.Close(websocket.CloseInternalServerErr, "attach failed")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}()
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(sid, conn)
	}()
}
