package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/playmatatu/duels/internal/api/handlers"
	"github.com/playmatatu/duels/internal/challenge"
	"github.com/playmatatu/duels/internal/config"
	"github.com/playmatatu/duels/internal/middleware"
	"github.com/playmatatu/duels/internal/ws"
)

// Dependencies are the services the routes dispatch to.
type Dependencies struct {
	Manager  *challenge.Manager
	Inbox    handlers.InboxLister
	Sessions *ws.Sessions
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, cfg *config.Config, deps Dependencies) {
	router.Use(middleware.CORSMiddleware(cfg))

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] no-cache headers enabled for all routes")
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck(cfg))
		v1.GET("/games", handlers.ListGames)

		authed := v1.Group("")
		authed.Use(handlers.AuthMiddleware(cfg))
		{
			authed.GET("/challenges", handlers.ListChallenges(deps.Manager))
			authed.POST("/challenges", handlers.CreateChallenge(deps.Manager))
			authed.POST("/challenges/:id/result", handlers.SubmitResult(deps.Manager))
			authed.GET("/inbox", handlers.ListInbox(deps.Inbox))

			if deps.Sessions != nil {
				authed.GET("/challenges/ws", middleware.WebSocketCORSCheck(cfg), handlers.HandleChallengeWebSocket(deps.Sessions))
			}
		}
	}
}
