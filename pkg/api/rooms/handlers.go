package rooms

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
	"github.com/discussion-engine/orchestrator/pkg/core/roomstore"
	"github.com/discussion-engine/orchestrator/pkg/core/utils"
)

// Handler serves the /api/rooms* HTTP surface (spec.md §6). Grounded on
// pkg/api/debate/handlers.go's manual CORS + method-check + json.Decode
// style.
type Handler struct {
	registry *Registry
}

// NewHandler builds a Handler over registry.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

type createRoomRequest struct {
	RoomName string             `json:"room_name"`
	Agents   []agentSpecRequest `json:"agents"`
}

type agentSpecRequest struct {
	Name     string            `json:"name"`
	Role     string            `json:"role"`
	Prompt   string            `json:"prompt"`
	Model    string            `json:"model"`
	Platform roomspec.Platform `json:"platform"`
}

func cors(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// HandleRooms serves GET /api/rooms (list) and POST /api/rooms (create).
func (h *Handler) HandleRooms(w http.ResponseWriter, r *http.Request) {
	cors(w, "GET, POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"rooms": h.registry.ListRooms()})
	case http.MethodPost:
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		specs := make([]roomspec.AgentSpec, 0, len(req.Agents))
		for i, a := range req.Agents {
			specs = append(specs, roomspec.New(
				agentID(i), a.Name, a.Role, a.Prompt, a.Platform, roomspec.ModelParams{Model: a.Model}))
		}
		roomID, err := h.registry.CreateRoom(req.RoomName, specs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"room_id": roomID})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleRoom serves DELETE /api/rooms/{id}, GET /api/rooms/{id}/history,
// GET /api/rooms/{id}/export, and GET /api/rooms/{id}/agents.
func (h *Handler) HandleRoom(w http.ResponseWriter, r *http.Request) {
	cors(w, "GET, DELETE")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	roomID, suffix := parseRoomPath(r.URL.Path)
	if roomID == "" {
		http.Error(w, "room id is required", http.StatusBadRequest)
		return
	}

	switch {
	case suffix == "" && r.Method == http.MethodDelete:
		if err := h.registry.DeleteRoom(roomID); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case suffix == "history" && r.Method == http.MethodGet:
		turns, err := h.registry.History(roomID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"room_id": roomID, "messages": turns})

	case suffix == "export" && r.Method == http.MethodGet:
		manifest, turns, err := h.registry.Export(roomID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		switch r.URL.Query().Get("format") {
		case "markdown":
			w.Header().Set("Content-Type", "text/markdown")
			w.Header().Set("Content-Disposition", "attachment; filename="+roomID+".md")
			w.Write([]byte(transcriptMarkdown(manifest, turns)))
		case "html":
			rendered, err := utils.RenderHTML(transcriptMarkdown(manifest, turns))
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(rendered))
		default:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Disposition", "attachment; filename="+roomID+".json")
			json.NewEncoder(w).Encode(map[string]interface{}{"manifest": manifest, "turns": turns})
		}

	case suffix == "agents" && r.Method == http.MethodGet:
		participants, err := h.registry.Participants(roomID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"agents": participants})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// parseRoomPath splits "/api/rooms/{id}[/{suffix}]" into its two parts.
func parseRoomPath(path string) (roomID, suffix string) {
	trimmed := strings.TrimPrefix(path, "/api/rooms/")
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return "", ""
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func agentID(i int) string {
	return "agent-" + strconv.Itoa(i+1)
}

// transcriptMarkdown renders a room's manifest and turns as a readable
// Markdown transcript for the export?format=markdown|html endpoints.
// Each turn's content is cleaned with utils.CleanMarkdown since agent
// replies sometimes arrive wrapped in a stray code fence.
func transcriptMarkdown(manifest roomstore.Manifest, turns []discussion.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", manifest.RoomName)
	fmt.Fprintf(&b, "room_id: %s  \ncreated_at: %s\n\n", manifest.RoomID, manifest.CreatedAt.Format("2006-01-02T15:04:05Z"))
	for _, t := range turns {
		fmt.Fprintf(&b, "### %s (turn %d)\n\n%s\n\n", t.SpeakerID, t.TurnID, utils.CleanMarkdown(t.Content))
	}
	return b.String()
}
