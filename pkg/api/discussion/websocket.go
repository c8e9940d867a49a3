package discussion

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/discussion-engine/orchestrator/pkg/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocketHandler upgrades /ws connections into hub.Client registrations
// and feeds inbound frames into a hub.Dispatcher, matching the full-duplex
// ClientHub bridge from spec.md §4.8. Grounded on the
// chriscow-livekit-agents-go ReadJSON/WriteJSON idiom, server-side instead
// of client-side.
type WebSocketHandler struct {
	hub             *hub.Hub
	dispatcher      *hub.Dispatcher
	serverRestartID string
}

// NewWebSocketHandler builds a handler over h/d, stamping every connection
// handshake with serverRestartID (spec.md §6's reconnect-detection field).
func NewWebSocketHandler(h *hub.Hub, d *hub.Dispatcher, serverRestartID string) *WebSocketHandler {
	return &WebSocketHandler{hub: h, dispatcher: d, serverRestartID: serverRestartID}
}

// ServeHTTP upgrades the connection, registers it, and reads frames until
// the client disconnects.
func (wh *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("discussion: websocket upgrade failed: %v", err)
		return
	}

	client := wh.hub.Register(conn, wh.serverRestartID)
	defer wh.hub.Unregister(client)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		wh.dispatcher.Handle(client, raw)
	}
}
