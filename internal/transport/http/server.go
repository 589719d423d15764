// Package http serves the operator API and the Telegram webhook.
package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/ttbridge/internal/auth"
	"github.com/vovakirdan/ttbridge/internal/bridge"
	"github.com/vovakirdan/ttbridge/internal/config"
)

// Deps are the components the HTTP layer talks to.
type Deps struct {
	Auth     *auth.Service
	Worker   WorkerView
	Commands bridge.CommandSender
	// Webhook is nil when the bot uses long polling.
	Webhook  WebhookReceiver
	Shutdown func()
}

// NewServer builds an HTTP server with the operator routes.
func NewServer(deps Deps, cfg config.HTTPConfig, logger *zerolog.Logger) *stdhttp.Server {
	l := logger.With().Str("component", "http").Logger()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(&l))

	router.GET("/health", healthHandler)

	limiter := newRateLimiter(cfg.LoginRateLimit)
	stop := make(chan struct{})
	limiter.startReset(stop)

	api := NewAPIHandlers(deps.Auth, &l)
	router.POST("/api/login", limiter.middleware(), api.Login)

	admin := NewAdminHandlers(deps.Worker, deps.Commands, deps.Shutdown, &l)
	protected := router.Group("/api", AuthMiddleware(deps.Auth, &l))
	protected.GET("/status", admin.Status)
	protected.GET("/presence", admin.Presence)
	protected.GET("/accounts", admin.Accounts)
	protected.POST("/streams/skip", admin.SkipStream)
	protected.POST("/users/:id/kick", admin.KickUser)
	protected.POST("/users/:id/ban", admin.BanUser)
	protected.POST("/shutdown", admin.Shutdown)

	if deps.Webhook != nil {
		router.POST(WebhookPath, WebhookHandler(deps.Webhook, &l))
	}

	server := &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	server.RegisterOnShutdown(func() { close(stop) })
	return server
}

func healthHandler(c *gin.Context) {
	_, _ = fmt.Fprint(c.Writer, "ok")
}
