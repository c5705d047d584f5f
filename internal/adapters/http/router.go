package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dkeye/Live/internal/adapters/signal"
	"github.com/dkeye/Live/internal/app/orch"
	"github.com/dkeye/Live/internal/config"
	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "ct"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token kept in the
// cookie session. It only labels connections in logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type sessionView struct {
	StreamID    domain.StreamID `json:"streamId"`
	Live        bool            `json:"live"`
	Broadcaster string          `json:"broadcaster,omitempty"`
	Viewers     int             `json:"viewers"`
	Members     int             `json:"members"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("LiveSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	ctrl := signal.NewSignalWSController(o, signal.OptionsFrom(cfg))
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/stats", func(c *gin.Context) {
		streams := o.Sessions.Streams()
		if streams == nil {
			streams = []domain.StreamID{}
		}
		c.JSON(http.StatusOK, gin.H{
			"connections": o.Registry.Count(),
			"live":        len(streams),
			"streams":     streams,
		})
	})

	// GET /api/streams/:id/session: negotiation state of one stream
	api.GET("/streams/:id/session", func(c *gin.Context) {
		stream := domain.StreamID(c.Param("id"))
		members := len(o.Presence.Members(stream))
		sess, ok := o.Sessions.Snapshot(stream)
		if !ok && members == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
			return
		}
		view := sessionView{StreamID: stream, Live: ok, Members: members}
		if ok {
			view.Broadcaster = string(sess.Broadcaster)
			view.Viewers = len(sess.Viewers)
		}
		c.JSON(http.StatusOK, view)
	})

	// GET /api/streams/:id/messages?limit=N: persisted chat, oldest first
	api.GET("/streams/:id/messages", func(c *gin.Context) {
		history, ok := o.Store.(core.History)
		if !ok {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "chat history unavailable"})
			return
		}
		limit := core.DefaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		msgs, err := history.RecentMessages(c.Request.Context(), domain.StreamID(c.Param("id")), limit)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("stream", c.Param("id")).Msg("read chat history")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read messages"})
			return
		}
		c.JSON(http.StatusOK, msgs)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
