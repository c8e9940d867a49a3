// Package rooms is the room registry: create/list/delete rooms and read
// their persisted history, backed by a roomstore.RoomStore. Grounded on
// pkg/api/debate/handlers.go's HandleStartDebate/HandleActiveDebates shape,
// generalized from one global debate.GetManager() to a roomID-addressed
// registry.
package rooms

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
	"github.com/discussion-engine/orchestrator/pkg/core/roomstore"
)

// Registry owns room creation/deletion/listing atop a roomstore.RoomStore.
// It satisfies hub.RoomService.
type Registry struct {
	store roomstore.RoomStore
}

// NewRegistry wraps store.
func NewRegistry(store roomstore.RoomStore) *Registry {
	return &Registry{store: store}
}

// CreateRoom mints a roomID and persists a manifest for it.
func (r *Registry) CreateRoom(name string, agents []roomspec.AgentSpec) (string, error) {
	if name == "" {
		return "", fmt.Errorf("room_name is required")
	}
	if len(agents) == 0 {
		return "", fmt.Errorf("at least one agent is required")
	}

	roomID := uuid.New().String()
	manifest := roomstore.Manifest{
		RoomID:       roomID,
		RoomName:     name,
		CreatedAt:    time.Now().UTC(),
		Participants: agents,
	}
	if err := r.store.Save(manifest); err != nil {
		return "", err
	}
	return roomID, nil
}

// DeleteRoom removes roomID and its history.
func (r *Registry) DeleteRoom(roomID string) error {
	return r.store.Delete(roomID)
}

// ListRoomIDs returns every known room's id.
func (r *Registry) ListRoomIDs() []string {
	manifests, err := r.store.List()
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(manifests))
	for _, m := range manifests {
		ids = append(ids, m.RoomID)
	}
	return ids
}

// ListRooms returns every known room's manifest.
func (r *Registry) ListRooms() []roomstore.Manifest {
	manifests, _ := r.store.List()
	return manifests
}

// Participants returns roomID's registered agents.
func (r *Registry) Participants(roomID string) ([]roomspec.AgentSpec, error) {
	manifest, err := r.store.Load(roomID)
	if err != nil {
		return nil, err
	}
	return manifest.Participants, nil
}

// History returns roomID's persisted turns.
func (r *Registry) History(roomID string) ([]discussion.Turn, error) {
	return r.store.History(roomID)
}

// Export returns roomID's manifest and full turn history together, for the
// /api/rooms/{id}/export endpoint.
func (r *Registry) Export(roomID string) (roomstore.Manifest, []discussion.Turn, error) {
	manifest, err := r.store.Load(roomID)
	if err != nil {
		return roomstore.Manifest{}, nil, err
	}
	turns, err := r.store.History(roomID)
	if err != nil {
		return roomstore.Manifest{}, nil, err
	}
	return manifest, turns, nil
}
