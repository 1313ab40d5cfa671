package web

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tosih/motronic-fuel-trim/internal/syncutil"
)

const (
	// writeWait bounds a single write to a viewer
	writeWait = 2 * time.Second
	// sendQueue is how many messages a viewer may lag before new ones are dropped
	sendQueue = 16
)

// WSMessage is the envelope pushed to viewers
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// writeLoop owns all writes to the connection
func (c *wsClient) writeLoop() {
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			// The read loop sees the closed connection and removes the client
			_ = c.conn.Close()
			for range c.send {
			}
			return
		}
	}
}

// Hub fans live messages out to every connected viewer. Broadcast never
// waits on a viewer: each one has its own queue and writer goroutine.
type Hub struct {
	mu      syncutil.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub returns an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

func (h *Hub) add(conn *websocket.Conn) *wsClient {
	c := &wsClient{conn: conn, send: make(chan []byte, sendQueue)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go c.writeLoop()
	return c
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// Len returns the number of connected viewers
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every viewer and returns the number of viewers
// whose queue was full and missed it.
func (h *Hub) Broadcast(msg WSMessage) int {
	b, err := json.Marshal(msg)
	if err != nil {
		return 0
	}

	dropped := 0
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			dropped++
		}
	}
	return dropped
}
