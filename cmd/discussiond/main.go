// Command discussiond is the discussion-engine server: it wires the room
// registry, FrameworkManager, ClientHub, and HTTP surface together and
// starts listening. Grounded on cmd/api/main.go's startup shape
// (godotenv.Load, yaml config, http.HandleFunc registration, a single
// http.ListenAndServe call, exit with status 1 on bind failure).
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/discussion-engine/orchestrator/pkg/api/discussion"
	"github.com/discussion-engine/orchestrator/pkg/api/rooms"
	"github.com/discussion-engine/orchestrator/pkg/config"
	"github.com/discussion-engine/orchestrator/pkg/core/framework"
	"github.com/discussion-engine/orchestrator/pkg/core/roomstore"
	"github.com/discussion-engine/orchestrator/pkg/core/store"
	"github.com/discussion-engine/orchestrator/pkg/hub"
)

func main() {
	cfg := config.Load("config/models.yaml")

	roomStore, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("[FATAL] failed to initialize room store: %v", err)
	}

	registry := rooms.NewRegistry(roomStore)
	manager := framework.GetManager(cfg.Controller, roomStore)
	clientHub := hub.New(cfg.Publish)
	dispatcher := hub.NewDispatcher(clientHub, registry, manager)
	serverRestartID := uuid.New().String()

	roomsHandler := rooms.NewHandler(registry)
	settingsHandler := rooms.NewSettingsHandler(cfg.Models, cfg.Controller.Backend)
	discussionHandler := discussion.NewHandler(manager, registry, clientHub)
	wsHandler := discussion.NewWebSocketHandler(clientHub, dispatcher, serverRestartID)

	http.HandleFunc("/api/rooms", roomsHandler.HandleRooms)
	http.HandleFunc("/api/rooms/", roomsHandler.HandleRoom)
	http.HandleFunc("/api/settings", settingsHandler.HandleSettings)
	http.HandleFunc("/api/test-connection", settingsHandler.HandleTestConnection)
	http.HandleFunc("/api/discussion/start", discussionHandler.HandleStart)
	http.HandleFunc("/api/discussion/status/", discussionHandler.HandleStatus)
	http.HandleFunc("/api/discussion/control/", discussionHandler.HandleControl)
	http.HandleFunc("/api/discussion/summary/", discussionHandler.HandleSummary)
	http.HandleFunc("/api/discussion/question/", discussionHandler.HandleQuestion)
	http.Handle("/ws", wsHandler)

	addr := fmt.Sprintf("%s:%s", cfg.BindHost, cfg.BindPort)
	fmt.Printf("discussiond starting on %s...\n", addr)
	fmt.Println("  - GET/POST /api/rooms")
	fmt.Println("  - GET/DELETE /api/rooms/{id}[/history|/export|/agents]")
	fmt.Println("  - GET/POST /api/settings")
	fmt.Println("  - POST /api/test-connection")
	fmt.Println("  - POST /api/discussion/start")
	fmt.Println("  - GET  /api/discussion/status/{id}")
	fmt.Println("  - POST /api/discussion/control/{id}")
	fmt.Println("  - GET  /api/discussion/summary/{id}")
	fmt.Println("  - POST /api/discussion/question/{id}")
	fmt.Println("  - GET  /ws (websocket)")

	if err := http.ListenAndServe(addr, nil); err != nil {
		fmt.Printf("[FATAL] Server failed to start: %v\n", err)
		os.Exit(1)
	}
}

// buildStore prefers PostgresRoomStore when DATABASE_URL is set (multiple
// discussiond processes sharing one logical room set), otherwise falls
// back to a local FileRoomStore (spec.md §6.3's default, the layout S6's
// crash-recovery scenario is defined against). The Postgres pool itself is
// the teacher's sync.Once-guarded singleton (pkg/core/store), so a second
// call to buildStore in the same process (tests, future multi-listener
// setups) reuses the one pool instead of opening another.
func buildStore(cfg config.EngineConfig) (roomstore.RoomStore, error) {
	if cfg.DatabaseURL == "" {
		return roomstore.NewFileRoomStore("data/rooms")
	}

	ctx := context.Background()
	if err := store.InitDB(ctx); err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return roomstore.NewPostgresRoomStore(ctx, store.GetPool())
}
