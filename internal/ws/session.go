package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duels/internal/challenge"
	"github.com/playmatatu/duels/internal/models"
	"github.com/playmatatu/duels/internal/realtime"
	"github.com/playmatatu/duels/internal/rules"
)

// Refresher is the part of challenge.Manager a session needs.
type Refresher interface {
	Refresh(ctx context.Context, userID, gameID string) []models.Challenge
}

// Sessions serves the per-user challenge websocket: a realtime listener,
// alerts, and snapshot pushes.
type Sessions struct {
	hub     *Hub
	manager Refresher
	channel realtime.Channel
}

func NewSessions(hub *Hub, manager Refresher, channel realtime.Channel) *Sessions {
	return &Sessions{hub: hub, manager: manager, channel: channel}
}

// HandleWebSocket upgrades an authenticated request. The user id is set by
// the auth middleware; game_id optionally scopes the session to one game.
func (s *Sessions) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	gameID := c.Query("game_id")
	if gameID != "" {
		if _, err := rules.Lookup(gameID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
	}
	if !s.hub.add(client) {
		conn.Close()
		return
	}
	go client.writePump()

	ctx, cancel := context.WithCancel(context.Background())
	push := func(rows []models.Challenge) {
		client.queue(Message{Type: "snapshot", Data: challenge.Split(rows, userID)})
	}

	listener := realtime.NewListener(s.channel, userID, gameID, s.manager, s.hub)
	listener.OnSnapshot = push
	if err := listener.Subscribe(ctx); err != nil {
		// the session still works through explicit refresh requests
		log.Printf("[WS] realtime subscribe for %s failed: %v", userID, err)
	}

	go func() {
		push(s.manager.Refresh(ctx, userID, gameID))
		client.readPump(func() {
			push(s.manager.Refresh(ctx, userID, gameID))
		})

		cancel()
		listener.Close()
		s.hub.remove(client)
	}()
}

// queue sends to this connection only, dropping when the buffer is full.
// Only called before the client is removed from the hub.
func (c *Client) queue(message any) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] marshal message for %s: %v", c.userID, err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[WS] dropped message for %s (buffer full)", c.userID)
	}
}
