package rooms

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/config"
	"github.com/discussion-engine/orchestrator/pkg/core/backend"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
)

// SettingsHandler serves GET/POST /api/settings and POST /api/test-connection.
// Grounded on pkg/api/config/handler.go's Response/SwitchRequest shape,
// generalized from a single process-wide ActiveProvider to the full
// config.ModelsConfig roster.
type SettingsHandler struct {
	mu       sync.RWMutex
	models   config.ModelsConfig
	thinkCfg backend.Config
}

// NewSettingsHandler seeds the handler with the config loaded at startup.
func NewSettingsHandler(models config.ModelsConfig, thinkCfg backend.Config) *SettingsHandler {
	return &SettingsHandler{models: models, thinkCfg: thinkCfg}
}

// HandleSettings serves GET (read current roster) and POST (replace it).
func (h *SettingsHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	cors(w, "GET, POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.mu.RLock()
		models := h.models
		h.mu.RUnlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models)

	case http.MethodPost:
		var models config.ModelsConfig
		if err := json.NewDecoder(r.Body).Decode(&models); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		h.mu.Lock()
		h.models = models
		h.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type testConnectionRequest struct {
	Platform roomspec.Platform `json:"platform"`
	Model    string            `json:"model"`
}

type testConnectionResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// HandleTestConnection issues one trivial Think call against the requested
// platform/model and reports whether it succeeded, mirroring the teacher's
// config-switch verification step but actually round-tripping a call
// instead of just flipping a string.
func (h *SettingsHandler) HandleTestConnection(w http.ResponseWriter, r *http.Request) {
	cors(w, "POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req testConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	spec := roomspec.New("test-connection", "test", "test", "reply with ok", req.Platform, roomspec.ModelParams{Model: req.Model})
	b := backend.New(spec, h.thinkCfg)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	start := time.Now()
	_, _, err := b.Think(ctx, "respond with a single word acknowledging this test", nil)
	resp := testConnectionResponse{OK: err == nil, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		resp.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
