package rooms

import (
	"testing"

	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
	"github.com/discussion-engine/orchestrator/pkg/core/roomstore"
)

func testAgents() []roomspec.AgentSpec {
	return []roomspec.AgentSpec{
		roomspec.New("a1", "Alpha", "proponent", "argue for", roomspec.PlatformMock, roomspec.ModelParams{}),
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := roomstore.NewFileRoomStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewRegistry(store)
}

func TestCreateRoomRejectsMissingName(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.CreateRoom("", testAgents()); err == nil {
		t.Fatal("want error for missing room_name, got nil")
	}
}

func TestCreateRoomRejectsNoAgents(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.CreateRoom("room", nil); err == nil {
		t.Fatal("want error for empty agents, got nil")
	}
}

func TestCreateRoomThenListRooms(t *testing.T) {
	r := newTestRegistry(t)
	roomID, err := r.CreateRoom("room one", testAgents())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := r.ListRoomIDs()
	if len(ids) != 1 || ids[0] != roomID {
		t.Fatalf("want [%s], got %v", roomID, ids)
	}

	manifests := r.ListRooms()
	if len(manifests) != 1 || manifests[0].RoomName != "room one" {
		t.Fatalf("unexpected manifests: %+v", manifests)
	}
}

func TestParticipantsReturnsRegisteredAgents(t *testing.T) {
	r := newTestRegistry(t)
	roomID, err := r.CreateRoom("room", testAgents())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	participants, err := r.Participants(roomID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(participants) != 1 || participants[0].AgentID != "a1" {
		t.Fatalf("unexpected participants: %+v", participants)
	}
}

func TestDeleteRoomRemovesIt(t *testing.T) {
	r := newTestRegistry(t)
	roomID, err := r.CreateRoom("room", testAgents())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.DeleteRoom(roomID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Participants(roomID); err != roomstore.ErrRoomNotFound {
		t.Fatalf("want ErrRoomNotFound, got %v", err)
	}
}

func TestExportUnknownRoomReturnsErrRoomNotFound(t *testing.T) {
	r := newTestRegistry(t)
	if _, _, err := r.Export("missing"); err != roomstore.ErrRoomNotFound {
		t.Fatalf("want ErrRoomNotFound, got %v", err)
	}
}
