// Package websocket provides WebSocket connection management and per-user
// message delivery.
package websocket

import (
	"context"
	"log/slog"
	"sync"
)

type delivery struct {
	userID string
	data   []byte
}

// Hub maintains the set of active WebSocket clients and routes messages to
// them.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages
	broadcast chan delivery

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop and returns when ctx is done.
// This should be called in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			slog.Debug("websocket client connected", "user_id", client.userID, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			slog.Debug("websocket client disconnected", "user_id", client.userID, "total", total)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.userID != msg.userID {
					continue
				}
				if !client.Send(msg.data) {
					// Send buffer full, drop the client
					client.close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastTo sends a message to every connection of one user.
func (h *Hub) BroadcastTo(userID string, message []byte) {
	if userID == "" {
		return
	}
	select {
	case h.broadcast <- delivery{userID: userID, data: message}:
	default:
		slog.Warn("websocket broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub. Once the hub has stopped the client is
// closed instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

// Unregister removes a client from the hub. It returns immediately once the
// hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one WebSocket connection of an authenticated user.
type Client struct {
	hub    *Hub
	userID string
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new WebSocket client for userID.
func NewClient(hub *Hub, userID string) *Client {
	return &Client{
		hub:    hub,
		userID: userID,
		send:   make(chan []byte, 256),
	}
}

// UserID returns the user the connection belongs to.
func (c *Client) UserID() string {
	return c.userID
}

// Outbound returns the channel the write pump drains. It is closed when the
// hub drops the client.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Send queues data for this connection only. It reports false when the
// client is closed or its buffer is full.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
