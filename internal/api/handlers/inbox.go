package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duels/internal/models"
)

type InboxLister interface {
	List(ctx context.Context, recipientID string, limit int) ([]models.InboxMessage, error)
}

// ListInbox returns the current user's inbox, newest first.
func ListInbox(box InboxLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		msgs, err := box.List(c.Request.Context(), currentUser(c), limit)
		if err != nil {
			log.Printf("[INBOX] list for %s failed: %v", currentUser(c), err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "inbox unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	}
}
