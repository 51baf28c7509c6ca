package websocket

import (
	"net/http"

	"bidding-core/pkg/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// WebSocketHandler upgrades observer connections and hands them to the hub.
// Sessions start with no subscriptions and join auctions by message.
type WebSocketHandler struct {
	hub *Hub
	log logger.Logger
}

func NewWebSocketHandler(hub *Hub, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, log: log}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	h.hub.Serve(conn)
}
