// Package roomstore persists room manifests and turn logs durably,
// independent of any running Controller (spec.md §3, §6.3). A RoomStore is
// consulted for room listing/history/deletion and is mirrored into
// asynchronously by a controller.Controller; it never drives the
// discussion loop itself.
package roomstore

import (
	"errors"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
)

// ErrRoomNotFound is returned by Load/History/Delete for an unknown room.
var ErrRoomNotFound = errors.New("roomstore: room not found")

// Manifest is the room-level record persisted once at creation (spec.md
// §6's "Persisted room layout").
type Manifest struct {
	RoomID       string             `json:"room_id"`
	RoomName     string             `json:"room_name"`
	CreatedAt    time.Time          `json:"created_at"`
	Participants []roomspec.AgentSpec `json:"participants"`
}

// RoomStore is the durability contract a controller.Controller mirrors
// turns into and the HTTP/room-registry layer reads from. Implementations
// must tolerate concurrent SaveTurn calls for different rooms and make
// Save idempotent for a manifest that already exists.
type RoomStore interface {
	Save(manifest Manifest) error
	SaveTurn(roomID string, turn discussion.Turn) error
	Load(roomID string) (Manifest, error)
	History(roomID string) ([]discussion.Turn, error)
	Delete(roomID string) error
	List() ([]Manifest, error)
}
