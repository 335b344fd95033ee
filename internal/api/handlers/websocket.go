package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duels/internal/ws"
)

// HandleChallengeWebSocket serves the realtime challenge session.
func HandleChallengeWebSocket(sessions *ws.Sessions) gin.HandlerFunc {
	return sessions.HandleWebSocket
}
