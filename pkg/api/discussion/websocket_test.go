package discussion

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/discussion-engine/orchestrator/pkg/api/rooms"
	"github.com/discussion-engine/orchestrator/pkg/core/framework"
	"github.com/discussion-engine/orchestrator/pkg/core/roomstore"
	"github.com/discussion-engine/orchestrator/pkg/hub"
)

func newTestWebSocketServer(t *testing.T) (*httptest.Server, *rooms.Registry) {
	t.Helper()
	store, err := roomstore.NewFileRoomStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	registry := rooms.NewRegistry(store)
	manager := framework.NewManager(fastConfig(), store)
	t.Cleanup(manager.Close)

	h := hub.New(100 * time.Millisecond)
	dispatcher := hub.NewDispatcher(h, registry, manager)
	wsHandler := NewWebSocketHandler(h, dispatcher, "restart-1")

	server := httptest.NewServer(wsHandler)
	t.Cleanup(server.Close)
	return server, registry
}

func dialTestWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketUpgradeSendsConnectionHandshake(t *testing.T) {
	server, _ := newTestWebSocketServer(t)
	conn := dialTestWS(t, server)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error reading handshake: %v", err)
	}

	var envelope map[string]interface{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unexpected handshake body: %v", err)
	}
	if envelope["type"] != "connection" {
		t.Fatalf("want connection handshake, got %v", envelope)
	}
	payload, _ := envelope["payload"].(map[string]interface{})
	if payload["server_restart_id"] != "restart-1" {
		t.Fatalf("want server_restart_id restart-1, got %v", payload["server_restart_id"])
	}
}

func TestWebSocketDispatchesCreateRoom(t *testing.T) {
	server, registry := newTestWebSocketServer(t)
	conn := dialTestWS(t, server)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("unexpected error reading handshake: %v", err)
	}

	createMsg := `{"type":"create_room","room_name":"demo","agents":[{"name":"Alpha","role":"proponent","prompt":"argue for","platform":"mock"}]}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(createMsg)); err != nil {
		t.Fatalf("unexpected error writing message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error reading reply: %v", err)
	}
	var envelope map[string]interface{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unexpected reply body: %v", err)
	}
	if envelope["type"] != "room_created" {
		t.Fatalf("want room_created, got %v", envelope)
	}

	if len(registry.ListRoomIDs()) != 1 {
		t.Fatalf("want 1 room registered, got %d", len(registry.ListRoomIDs()))
	}
}
