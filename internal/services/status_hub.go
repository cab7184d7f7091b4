// Package services holds the daemon-side glue that is neither storage nor
// domain state: the event hub the UI shell subscribes to.
package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/herdsync/engine/internal/observability"
)

// Event is one message pushed to connected UI clients.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Event types the engine emits.
const (
	EventSyncStarted    = "sync_started"
	EventSyncCompleted  = "sync_completed"
	EventSyncDeferred   = "sync_deferred"
	EventSessionOpened  = "session_opened"
	EventSessionClosed  = "session_closed"
	EventAuthExpired    = "auth_expired"
	EventStorageTrouble = "storage_trouble"
)

// StatusClient is one connected UI shell.
type StatusClient struct {
	conn       *websocket.Conn
	send       chan []byte
	hub        *StatusHub
	closedOnce sync.Once
}

// StatusHub fans engine events out to every connected UI client. The local
// daemon rarely has more than one, but a dev tool watching alongside the
// app costs nothing to support.
type StatusHub struct {
	clients    map[*StatusClient]bool
	register   chan *StatusClient
	unregister chan *StatusClient
	broadcast  chan []byte
	log        *observability.Logger
}

// NewStatusHub creates the hub.
func NewStatusHub() *StatusHub {
	return &StatusHub{
		clients:    make(map[*StatusClient]bool),
		register:   make(chan *StatusClient),
		unregister: make(chan *StatusClient),
		broadcast:  make(chan []byte, 64),
		log:        observability.GetLogger().WithField("component", "status_hub"),
	}
}

// Run starts the hub's main loop
func (h *StatusHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.log.Debug("status client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.log.Debug("status client disconnected")

		case msg := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Client buffer full, drop the connection.
					go func(c *StatusClient) {
						h.unregister <- c
					}(client)
				}
			}
		}
	}
}

// Publish sends one event to every connected client. Nothing in the engine
// waits on delivery.
func (h *StatusHub) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Errorf("failed to encode status event: %v", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("status broadcast buffer full, event dropped")
	}
}

// NewClient creates a client bound to this hub.
func (h *StatusHub) NewClient(conn *websocket.Conn) *StatusClient {
	return &StatusClient{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}
}

// Register adds a client to the hub
func (h *StatusHub) Register(client *StatusClient) {
	h.register <- client
}

// Close closes the client connection
func (c *StatusClient) Close() {
	c.closedOnce.Do(func() {
		c.hub.unregister <- c
		c.conn.Close()
	})
}

// WritePump pumps events from the hub to the websocket connection
func (c *StatusClient) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump drains the connection. Clients only listen, so inbound traffic
// is just pings keeping the read deadline alive.
func (c *StatusClient) ReadPump() {
	defer c.Close()

	c.conn.SetReadLimit(4 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
