package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/herdsync/engine/internal/observability"
	"github.com/herdsync/engine/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The daemon binds to loopback only; the UI shell is the one caller.
		return true
	},
}

// WebSocketHandler upgrades UI connections onto the status hub.
type WebSocketHandler struct {
	hub *services.StatusHub
	log *observability.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *services.StatusHub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		log: observability.GetLogger().WithField("component", "websocket"),
	}
}

// HandleConnection upgrades HTTP to WebSocket and streams engine events
// until the client goes away.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	client := h.hub.NewClient(conn)
	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump()
}
