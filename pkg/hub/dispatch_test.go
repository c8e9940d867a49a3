package hub

import (
	"fmt"
	"testing"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/core/controller"
	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/framework"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
)

type fakeRoomService struct {
	rooms map[string][]roomspec.AgentSpec
}

func newFakeRoomService() *fakeRoomService {
	return &fakeRoomService{rooms: make(map[string][]roomspec.AgentSpec)}
}

func (f *fakeRoomService) CreateRoom(name string, agents []roomspec.AgentSpec) (string, error) {
	if name == "" {
		return "", fmt.Errorf("room_name required")
	}
	roomID := "room-" + name
	f.rooms[roomID] = agents
	return roomID, nil
}

func (f *fakeRoomService) DeleteRoom(roomID string) error {
	if _, ok := f.rooms[roomID]; !ok {
		return fmt.Errorf("room not found")
	}
	delete(f.rooms, roomID)
	return nil
}

func (f *fakeRoomService) ListRoomIDs() []string {
	ids := make([]string, 0, len(f.rooms))
	for id := range f.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeRoomService) Participants(roomID string) ([]roomspec.AgentSpec, error) {
	p, ok := f.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room not found")
	}
	return p, nil
}

func (f *fakeRoomService) History(roomID string) ([]discussion.Turn, error) {
	if _, ok := f.rooms[roomID]; !ok {
		return nil, fmt.Errorf("room not found")
	}
	return nil, nil
}

func testAgents() []roomspec.AgentSpec {
	return []roomspec.AgentSpec{
		roomspec.New("a1", "Alpha", "proponent", "argue for", roomspec.PlatformMock, roomspec.ModelParams{}),
		roomspec.New("a2", "Beta", "skeptic", "argue against", roomspec.PlatformMock, roomspec.ModelParams{}),
	}
}

func recvEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case env := <-c.outbound:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
		return Envelope{}
	}
}

func TestDispatchCreateRoomBroadcastsRoomCreated(t *testing.T) {
	h := New(DefaultPublishTimeout)
	rooms := newFakeRoomService()
	manager := framework.NewManager(controller.DefaultConfig(), nil)
	defer manager.Close()
	d := NewDispatcher(h, rooms, manager)

	owner := newClient("owner", nil)
	observer := newClient("observer", nil)
	h.mu.Lock()
	h.clients[owner.id] = owner
	h.clients[observer.id] = observer
	h.mu.Unlock()

	d.Handle(owner, []byte(`{"type":"create_room","room_name":"demo","agents":[{"name":"Alpha","platform":"mock"}]}`))

	env := recvEnvelope(t, observer)
	if env.Type != "room_created" {
		t.Fatalf("want room_created, got %q", env.Type)
	}
}

func TestDispatchJoinRoomUnknownRoomRepliesError(t *testing.T) {
	h := New(DefaultPublishTimeout)
	rooms := newFakeRoomService()
	manager := framework.NewManager(controller.DefaultConfig(), nil)
	defer manager.Close()
	d := NewDispatcher(h, rooms, manager)

	c := newClient("c1", nil)
	d.Handle(c, []byte(`{"type":"join_room","room_id":"missing"}`))

	env := recvEnvelope(t, c)
	if env.Type != "error" {
		t.Fatalf("want error, got %q", env.Type)
	}
	payload := env.Payload.(map[string]interface{})
	if payload["error_code"] != "ROOM_NOT_FOUND" {
		t.Fatalf("want ROOM_NOT_FOUND, got %v", payload["error_code"])
	}
}

func TestDispatchJoinRoomKnownRoomRepliesRoomJoined(t *testing.T) {
	h := New(DefaultPublishTimeout)
	rooms := newFakeRoomService()
	rooms.rooms["room-1"] = testAgents()
	manager := framework.NewManager(controller.DefaultConfig(), nil)
	defer manager.Close()
	d := NewDispatcher(h, rooms, manager)

	c := newClient("c1", nil)
	d.Handle(c, []byte(`{"type":"join_room","room_id":"room-1"}`))

	env := recvEnvelope(t, c)
	if env.Type != "room_joined" {
		t.Fatalf("want room_joined, got %q", env.Type)
	}
	if !c.subscribedTo("room-1") {
		t.Fatal("want client subscribed to room-1 after join")
	}
}

func TestDispatchGetRoomsListsKnownRooms(t *testing.T) {
	h := New(DefaultPublishTimeout)
	rooms := newFakeRoomService()
	rooms.rooms["room-1"] = testAgents()
	manager := framework.NewManager(controller.DefaultConfig(), nil)
	defer manager.Close()
	d := NewDispatcher(h, rooms, manager)

	c := newClient("c1", nil)
	d.Handle(c, []byte(`{"type":"get_rooms"}`))

	env := recvEnvelope(t, c)
	if env.Type != "rooms_list" {
		t.Fatalf("want rooms_list, got %q", env.Type)
	}
}

func TestDispatchUnknownTypeRepliesBadRequest(t *testing.T) {
	h := New(DefaultPublishTimeout)
	manager := framework.NewManager(controller.DefaultConfig(), nil)
	defer manager.Close()
	d := NewDispatcher(h, newFakeRoomService(), manager)

	c := newClient("c1", nil)
	d.Handle(c, []byte(`{"type":"not_a_real_type"}`))

	env := recvEnvelope(t, c)
	payload := env.Payload.(map[string]interface{})
	if payload["error_code"] != "BAD_REQUEST" {
		t.Fatalf("want BAD_REQUEST, got %v", payload["error_code"])
	}
}

func TestDispatchDiscussionControlUnknownRoomRepliesError(t *testing.T) {
	h := New(DefaultPublishTimeout)
	manager := framework.NewManager(controller.DefaultConfig(), nil)
	defer manager.Close()
	d := NewDispatcher(h, newFakeRoomService(), manager)

	c := newClient("c1", nil)
	d.Handle(c, []byte(`{"type":"discussion_control","room_id":"missing","action":"pause"}`))

	env := recvEnvelope(t, c)
	payload := env.Payload.(map[string]interface{})
	if payload["error_code"] != "ROOM_NOT_FOUND" {
		t.Fatalf("want ROOM_NOT_FOUND, got %v", payload["error_code"])
	}
}

func TestDispatchHumanQuestionUnknownRoomRepliesError(t *testing.T) {
	h := New(DefaultPublishTimeout)
	manager := framework.NewManager(controller.DefaultConfig(), nil)
	defer manager.Close()
	d := NewDispatcher(h, newFakeRoomService(), manager)

	c := newClient("c1", nil)
	d.Handle(c, []byte(`{"type":"human_question","room_id":"missing","target_agent_id":"a1","question":"why?"}`))

	env := recvEnvelope(t, c)
	payload := env.Payload.(map[string]interface{})
	if payload["error_code"] != "ROOM_NOT_FOUND" {
		t.Fatalf("want ROOM_NOT_FOUND, got %v", payload["error_code"])
	}
}
