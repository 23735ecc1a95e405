package http

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/remoterg/internal/adapters/signal"
	"github.com/dkeye/remoterg/internal/config"
	"github.com/dkeye/remoterg/internal/domain"
	"github.com/dkeye/remoterg/internal/relay"
)

const (
	sessionKey = "session_id"

	clientTokenCookie = "ct"
	clientTokenKey    = "client_token"
	clientTokenMaxAge = 7 * 24 * 3600
)

// ClientToken tags each browser with a long-lived random id. Session minting
// is rate limited per token.
func ClientToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(clientTokenCookie)
		if err != nil || uuid.Validate(token) != nil {
			token = uuid.NewString()
			c.SetCookie(clientTokenCookie, token, clientTokenMaxAge, "/", "", false, true)
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

type sessionResponse struct {
	SessionID domain.SessionID `json:"session_id"`
	HostURL   string           `json:"host_url"`
	ViewerURL string           `json:"viewer_url"`
}

func newSessionResponse(id domain.SessionID) sessionResponse {
	link := func(role domain.Role) string {
		q := url.Values{}
		q.Set("session_id", string(id))
		q.Set("role", string(role))
		return "/ws?" + q.Encode()
	}
	return sessionResponse{SessionID: id, HostURL: link(domain.RoleHost), ViewerURL: link(domain.RoleViewer)}
}

func SetupRouter(ctx context.Context, cfg *config.Relay, relays *relay.Manager, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RemoteRGSessions", store))
	r.Use(ClientToken())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).
			Str("session_id", c.Query("session_id")).Str("role", c.Query("role")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	api := r.Group("/api")
	mints := signal.NewUpgradeLimiter(cfg.SessionLimit, cfg.UpgradeWindow)

	api.POST("/sessions", func(c *gin.Context) {
		if !mints.Allow(c.GetString(clientTokenKey)) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many sessions created"})
			return
		}
		id := domain.NewSessionID()
		s := sessions.Default(c)
		s.Set(sessionKey, string(id))
		if err := s.Save(); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("save session cookie")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
			return
		}
		log.Info().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).
			Str("session_id", string(id)).Msg("session minted")
		c.JSON(http.StatusCreated, newSessionResponse(id))
	})

	api.GET("/sessions/current", func(c *gin.Context) {
		raw, _ := sessions.Default(c).Get(sessionKey).(string)
		id, err := domain.ParseSessionID(raw)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
			return
		}
		c.JSON(http.StatusOK, newSessionResponse(id))
	})

	api.GET("/sessions/:id", func(c *gin.Context) {
		id, err := domain.ParseSessionID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		st, ok := relays.Status(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		c.JSON(http.StatusOK, st)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
