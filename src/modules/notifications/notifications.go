package notifications

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	PostCreated = "post.created"
	PostUpdated = "post.updated"
	PostDeleted = "post.deleted"
	TagAssigned = "tag.assigned"
	TagRemoved  = "tag.removed"
)

// Event is broadcast to every connected client.
type Event struct {
	Type   string     `json:"type"`
	PostID uuid.UUID  `json:"post_id"`
	TagID  *uuid.UUID `json:"tag_id,omitempty"`
	At     time.Time  `json:"at"`
}

// Publisher accepts change events from the handlers.
type Publisher interface {
	Publish(e Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) {}

type client interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Hub fans events out to websocket clients.
type Hub struct {
	mu        sync.Mutex
	clients   map[client]bool
	broadcast chan Event
}

func NewHub(buffer int) *Hub {
	return &Hub{
		clients:   make(map[client]bool),
		broadcast: make(chan Event, buffer),
	}
}

// Publish queues an event without blocking; events are dropped when the queue is full.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case h.broadcast <- e:
	default:
		log.Printf("[Notifications] Queue full, dropping %s for post %s", e.Type, e.PostID)
	}
}

// Run broadcasts queued events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case e := <-h.broadcast:
			h.send(e)
		}
	}
}

func (h *Hub) send(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.WriteJSON(e); err != nil {
			log.Println("Error sending notification:", err)
			c.Close()
			delete(h.clients, c)
		}
	}
}

func (h *Hub) add(c client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(c client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		c.Close()
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
		delete(h.clients, c)
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handler is the websocket endpoint clients subscribe on.
func (h *Hub) Handler() func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		h.add(c)
		log.Println("New WebSocket client connected for notifications")
		defer h.remove(c)

		// Keep connection open until the client goes away
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				log.Println("WebSocket client disconnected:", err)
				return
			}
		}
	}
}
