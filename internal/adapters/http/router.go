package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Hush/internal/adapters/signal"
	"github.com/dkeye/Hush/internal/app"
	"github.com/dkeye/Hush/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clientTokenKey = "ct"
	sessionName    = "HushSession"
)

// StatsSource reads occupancy counters.
type StatsSource interface {
	Stats(ctx context.Context) (app.Stats, error)
}

// ClientTokenMiddleware gives every browser a stable identity kept in the
// signed session cookie. It is used as the redeem rate-limit key. Requests
// without a valid token (no cookie jar, forged cookie) are keyed by IP.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token != "" {
			c.Set("client_token", token)
			c.Next()
			return
		}

		session.Set(clientTokenKey, uuid.NewString())
		if err := session.Save(); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
		}
		c.Set("client_token", "ip:"+c.ClientIP())
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, hub signal.Hub, stats StatsSource) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   3600 * 24 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	ctrl := signal.NewSignalWSController(hub, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})
	r.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	api := r.Group("/api")
	api.GET("/stats", func(c *gin.Context) {
		st, err := stats.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, st)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
