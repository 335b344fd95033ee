package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/playmatatu/duels/internal/metrics"
	"github.com/playmatatu/duels/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is checked by middleware.WebSocketCORSCheck
	},
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
	sendBuffer = 64
)

// Client is one websocket connection of a user. A user may hold several.
type Client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Hub tracks connected clients per user.
type Hub struct {
	clients    map[string]map[*Client]struct{} // userID -> clients
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	mu         sync.RWMutex

	// OnLastDisconnect runs on the hub goroutine when a user's last client
	// leaves.
	OnLastDisconnect func(userID string)
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// Run processes registrations until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
			n := len(set)
			h.mu.Unlock()
			metrics.ActiveSessions.Inc()
			log.Printf("[WS] user %s connected (%d sessions)", client.userID, n)

		case client := <-h.unregister:
			h.mu.Lock()
			set := h.clients[client.userID]
			if _, ok := set[client]; !ok {
				h.mu.Unlock()
				continue
			}
			delete(set, client)
			close(client.send)
			last := len(set) == 0
			if last {
				delete(h.clients, client.userID)
			}
			h.mu.Unlock()
			metrics.ActiveSessions.Dec()
			log.Printf("[WS] user %s disconnected", client.userID)
			if last && h.OnLastDisconnect != nil {
				h.OnLastDisconnect(client.userID)
			}

		case <-ctx.Done():
			h.mu.Lock()
			for _, set := range h.clients {
				for client := range set {
					client.conn.Close()
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// add registers client; false once the hub has stopped.
func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Message is the envelope of every server -> client frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// SendToUser queues message on every connection of userID. Slow clients
// drop messages rather than block the caller.
func (h *Hub) SendToUser(userID string, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] marshal message for %s: %v", userID, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	set, ok := h.clients[userID]
	if !ok {
		return
	}
	for client := range set {
		select {
		case client.send <- data:
		default:
			log.Printf("[WS] SendToUser dropped message for %s (buffer full)", userID)
		}
	}
}

// Alert shows a short-lived alert on every session of userID.
func (h *Hub) Alert(userID string, alert models.Alert) {
	h.SendToUser(userID, Message{Type: "alert", Data: alert})
}

// Connected reports how many sessions userID has open.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] write error for %s: %v", c.userID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS] ping error for %s: %v", c.userID, err)
				return
			}
		}
	}
}

// clientMessage is what the browser may send.
type clientMessage struct {
	Type string `json:"type"`
}

// readPump blocks until the connection fails, calling onRefresh for each
// refresh request.
func (c *Client) readPump(onRefresh func()) {
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] read error for %s: %v", c.userID, err)
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "refresh":
			onRefresh()
		default:
			log.Printf("[WS] unknown message type %q from %s", msg.Type, c.userID)
		}
	}
}
