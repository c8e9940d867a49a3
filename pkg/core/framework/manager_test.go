package framework

import (
	"context"
	"testing"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/core/controller"
	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
)

func testParticipants() []roomspec.AgentSpec {
	return []roomspec.AgentSpec{
		roomspec.New("a1", "Alpha", "proponent", "argue for", roomspec.PlatformMock, roomspec.ModelParams{}),
		roomspec.New("a2", "Beta", "skeptic", "argue against", roomspec.PlatformMock, roomspec.ModelParams{}),
	}
}

func fastConfig() controller.Config {
	cfg := controller.DefaultConfig()
	cfg.DeciderParams.MaxTurns = 3
	return cfg
}

func TestStartThenStartAgainReturnsAlreadyActive(t *testing.T) {
	m := NewManager(fastConfig(), nil)
	defer m.Close()

	_, err := m.Start(context.Background(), "room-1", testParticipants(), "begin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = m.Start(context.Background(), "room-1", testParticipants(), "begin again")
	if err != ErrAlreadyActive {
		t.Fatalf("want ErrAlreadyActive, got %v", err)
	}
}

func TestStatusReflectsControllerPhase(t *testing.T) {
	m := NewManager(fastConfig(), nil)
	defer m.Close()

	sessionID, err := m.Start(context.Background(), "room-2", testParticipants(), "begin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := m.Status("room-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.SessionID != sessionID {
		t.Fatalf("want session id %q, got %q", sessionID, status.SessionID)
	}

	deadline := time.After(2 * time.Second)
	for {
		status, err = m.Status("room-2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if status.Phase == discussion.PhaseStopped {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for Stopped, last phase %s", status.Phase)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestControlUnknownRoomReturnsRoomNotFound(t *testing.T) {
	m := NewManager(fastConfig(), nil)
	defer m.Close()

	if err := m.Control("missing-room", ActionPause); err != ErrRoomNotFound {
		t.Fatalf("want ErrRoomNotFound, got %v", err)
	}
}

func TestAllStatusIncludesEveryStartedRoom(t *testing.T) {
	m := NewManager(fastConfig(), nil)
	defer m.Close()

	if _, err := m.Start(context.Background(), "room-a", testParticipants(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Start(context.Background(), "room-b", testParticipants(), "y"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	statuses := m.AllStatus()
	if len(statuses) != 2 {
		t.Fatalf("want 2 rooms tracked, got %d", len(statuses))
	}
}

func TestStartAgainAfterStoppedSucceeds(t *testing.T) {
	m := NewManager(fastConfig(), nil)
	defer m.Close()

	if _, err := m.Start(context.Background(), "room-3", testParticipants(), "begin"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		status, err := m.Status("room-3")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if status.Phase == discussion.PhaseStopped {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for Stopped")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := m.Start(context.Background(), "room-3", testParticipants(), "begin again"); err != nil {
		t.Fatalf("want restart after Stopped to succeed, got %v", err)
	}
}
