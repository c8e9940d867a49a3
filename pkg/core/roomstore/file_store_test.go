package roomstore

import (
	"testing"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
)

func newTestStore(t *testing.T) *FileRoomStore {
	t.Helper()
	s, err := NewFileRoomStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileRoomStore: %v", err)
	}
	return s
}

func testManifest(roomID string) Manifest {
	return Manifest{
		RoomID:    roomID,
		RoomName:  "demo",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Participants: []roomspec.AgentSpec{
			roomspec.New("a1", "Alpha", "proponent", "argue for", roomspec.PlatformMock, roomspec.ModelParams{}),
		},
	}
}

func TestSaveThenLoadRoundTripsManifest(t *testing.T) {
	s := newTestStore(t)
	want := testManifest("room-1")

	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load("room-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RoomID != want.RoomID || got.RoomName != want.RoomName {
		t.Fatalf("want %+v, got %+v", want, got)
	}
	if len(got.Participants) != 1 || got.Participants[0].AgentID != "a1" {
		t.Fatalf("participants not round-tripped: %+v", got.Participants)
	}
}

func TestLoadUnknownRoomReturnsErrRoomNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Load("missing"); err != ErrRoomNotFound {
		t.Fatalf("want ErrRoomNotFound, got %v", err)
	}
}

func TestSaveTurnAppendsInOrder(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(testManifest("room-1")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	for i := 1; i <= 3; i++ {
		turn := discussion.Turn{TurnID: i, RoomID: "room-1", SpeakerID: "a1", Content: "turn", TimestampUTC: time.Now().UTC()}
		if err := s.SaveTurn("room-1", turn); err != nil {
			t.Fatalf("SaveTurn %d: %v", i, err)
		}
	}

	turns, err := s.History("room-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("want 3 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.TurnID != i+1 {
			t.Fatalf("turn %d out of order: %+v", i, turn)
		}
	}
}

func TestHistoryToleratesTrailingPartialLine(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(testManifest("room-1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.SaveTurn("room-1", discussion.Turn{TurnID: 1, RoomID: "room-1", SpeakerID: "a1", Content: "ok", TimestampUTC: time.Now().UTC()}); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}

	// Simulate a crash mid-append: write a half-written JSON line with no
	// trailing newline (spec.md S6).
	s.mu.Lock()
	f := s.files["room-1"]
	s.mu.Unlock()
	if _, err := f.WriteString(`{"turn_id":2,"speaker_id":"a1","content":"cut off`); err != nil {
		t.Fatalf("write partial line: %v", err)
	}

	turns, err := s.History("room-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("want trailing partial line dropped, got %d turns", len(turns))
	}
}

func TestDeleteRemovesRoomEntirely(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(testManifest("room-1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.SaveTurn("room-1", discussion.Turn{TurnID: 1, RoomID: "room-1", SpeakerID: "a1", Content: "x", TimestampUTC: time.Now().UTC()}); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}

	if err := s.Delete("room-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load("room-1"); err != ErrRoomNotFound {
		t.Fatalf("want ErrRoomNotFound after delete, got %v", err)
	}
}

func TestListReturnsEveryRoomWithAManifest(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(testManifest("room-1")); err != nil {
		t.Fatalf("Save room-1: %v", err)
	}
	if err := s.Save(testManifest("room-2")); err != nil {
		t.Fatalf("Save room-2: %v", err)
	}

	manifests, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("want 2 manifests, got %d", len(manifests))
	}
}
