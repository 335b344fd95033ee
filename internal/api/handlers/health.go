package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duels/internal/config"
	"github.com/playmatatu/duels/internal/rules"
)

var startTime = time.Now()

const version = "1.0.0"

// HealthCheck reports liveness plus which challenge store and realtime
// channel this instance runs with.
func HealthCheck(cfg *config.Config) gin.HandlerFunc {
	store, realtime := "postgres", cfg.RealtimeChannel
	if cfg.UseMemoryStore() {
		store, realtime = "memory", "local"
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"service":     "duels-api",
			"version":     version,
			"environment": cfg.Environment,
			"store":       store,
			"realtime":    realtime,
			"games":       len(rules.All()),
			"uptime":      time.Since(startTime).String(),
		})
	}
}
