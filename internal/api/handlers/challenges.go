package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duels/internal/challenge"
	"github.com/playmatatu/duels/internal/models"
	"github.com/playmatatu/duels/internal/rules"
)

// CreateChallenge proposes a challenge from the current user.
func CreateChallenge(mgr *challenge.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			GameID     string `json:"game_id" binding:"required"`
			OpponentID string `json:"opponent_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "game_id and opponent_id are required"})
			return
		}

		id, err := mgr.ProposeChallenge(c.Request.Context(), req.GameID, currentUser(c), req.OpponentID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	}
}

// SubmitResult records the current user's result for a challenge.
func SubmitResult(mgr *challenge.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Metrics models.MetricBag `json:"metrics" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "metrics are required"})
			return
		}

		row, err := mgr.RecordOutcome(c.Request.Context(), c.Param("id"), currentUser(c), req.Metrics)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"challenge": row,
			"phase":     row.Phase(),
			"winner_id": row.WinnerID(),
		})
	}
}

// ListChallenges refetches the current user's challenges and returns them
// split into pending and history.
func ListChallenges(mgr *challenge.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		gameID := c.Query("game_id")
		if gameID != "" {
			if _, err := rules.Lookup(gameID); err != nil {
				respondError(c, err)
				return
			}
		}
		userID := currentUser(c)
		rows := mgr.Refresh(c.Request.Context(), userID, gameID)
		c.JSON(http.StatusOK, challenge.Split(rows, userID))
	}
}
