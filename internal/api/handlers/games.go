package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duels/internal/rules"
)

// ListGames returns every registered game with its ranking rules.
func ListGames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"games": rules.All()})
}
