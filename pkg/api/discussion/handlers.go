// Package discussion serves the discussion-control HTTP surface
// (status/control/start) and the websocket upgrade endpoint, grounded on
// pkg/api/debate/handlers.go's HandleStartDebate/HandleSubmitQuestion/
// HandleResumeDebate trio, generalized from a fixed phase-based debate to
// the SVR-driven Controller.
package discussion

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/discussion-engine/orchestrator/pkg/core/framework"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
	"github.com/discussion-engine/orchestrator/pkg/hub"
)

// RoomLookup resolves a roomID to its registered participants, as provided
// by rooms.Registry.
type RoomLookup interface {
	Participants(roomID string) ([]roomspec.AgentSpec, error)
}

// Handler serves /api/discussion/* over HTTP.
type Handler struct {
	manager *framework.Manager
	rooms   RoomLookup
	hub     *hub.Hub
}

// NewHandler builds a Handler wired to manager, rooms, and h (for
// bridging a freshly started Controller's events onto the websocket hub).
func NewHandler(manager *framework.Manager, rooms RoomLookup, h *hub.Hub) *Handler {
	return &Handler{manager: manager, rooms: rooms, hub: h}
}

func cors(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

type startRequest struct {
	RoomID       string `json:"room_id"`
	InitialInput string `json:"initial_input"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
}

// HandleStart serves POST /api/discussion/start.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	cors(w, "POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.RoomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	participants, err := h.rooms.Participants(req.RoomID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	sessionID, err := h.manager.Start(r.Context(), req.RoomID, participants, req.InitialInput)
	if err != nil && err != framework.ErrAlreadyActive {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if h.hub != nil {
		if c, ok := h.manager.Controller(req.RoomID); ok {
			hub.BridgeController(h.hub, req.RoomID, c)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(startResponse{SessionID: sessionID})
}

// HandleStatus serves GET /api/discussion/status/{id}.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	cors(w, "GET")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := strings.TrimPrefix(r.URL.Path, "/api/discussion/status/")
	status, err := h.manager.Status(roomID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

type controlRequest struct {
	Action string `json:"action"`
}

// HandleControl serves POST /api/discussion/control/{id}.
func (h *Handler) HandleControl(w http.ResponseWriter, r *http.Request) {
	cors(w, "POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := strings.TrimPrefix(r.URL.Path, "/api/discussion/control/")
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := h.manager.Control(roomID, framework.ControlAction(req.Action)); err != nil {
		if err == framework.ErrRoomNotFound {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSummary serves GET /api/discussion/summary/{id}, producing the
// optional end-of-session synthesis artifact (SPEC_FULL.md §10).
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	cors(w, "GET")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := strings.TrimPrefix(r.URL.Path, "/api/discussion/summary/")
	summary, err := h.manager.Summarize(r.Context(), roomID)
	if err != nil {
		if err == framework.ErrRoomNotFound {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

type questionRequest struct {
	TargetAgentID string `json:"target_agent_id"`
	Question      string `json:"question"`
}

// HandleQuestion serves POST /api/discussion/question/{id}, routing a
// human-submitted question at one participant without ending the paused
// session (SPEC_FULL.md §10).
func (h *Handler) HandleQuestion(w http.ResponseWriter, r *http.Request) {
	cors(w, "POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := strings.TrimPrefix(r.URL.Path, "/api/discussion/question/")
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := h.manager.SubmitHumanQuestion(roomID, req.TargetAgentID, req.Question); err != nil {
		if err == framework.ErrRoomNotFound {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
