// Package framework owns the process-wide registry mapping a room to its
// running Controller. Grounded on the teacher's DebateManager singleton
// (sync.Once instance, sync.RWMutex-guarded map, background cleanup
// ticker), generalized from "one orchestrator per debate" to "one
// Controller per room" (spec.md §4.7).
package framework

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/core/controller"
	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"

	"github.com/google/uuid"
)

// ControlAction is the closed set of commands Control accepts.
type ControlAction string

const (
	ActionPause  ControlAction = "pause"
	ActionResume ControlAction = "resume"
	ActionStop   ControlAction = "stop"
)

// ErrAlreadyActive mirrors spec.md §4.7: Start fails when a non-Stopped
// Controller already exists for the room.
var ErrAlreadyActive = fmt.Errorf("room already active")

// ErrRoomNotFound is returned by Control/Status for an unknown roomID.
var ErrRoomNotFound = fmt.Errorf("room not found")

// RoomStatus is the read-only status view Status/AllStatus return.
type RoomStatus struct {
	RoomID     string
	SessionID  string
	Phase      discussion.Phase
	Round      int
	TotalTurns int
}

// Manager is the process-wide roomID → Controller registry. Use GetManager
// for the process-wide singleton; NewManager exists for isolated tests.
type Manager struct {
	mu       sync.RWMutex
	rooms    map[string]*entry
	cfg      controller.Config
	store    controller.TurnSink
	maxAge   time.Duration
	stopOnce sync.Once
	stopCh   chan struct{}
}

type entry struct {
	sessionID  string
	controller *controller.Controller
	updatedAt  time.Time
}

var (
	instance *Manager
	once     sync.Once
)

// GetManager returns the process-wide singleton, constructing it with cfg
// and store on first call. Subsequent calls ignore their arguments, exactly
// like the teacher's GetManager/SetAgentManager split.
func GetManager(cfg controller.Config, store controller.TurnSink) *Manager {
	once.Do(func() {
		instance = NewManager(cfg, store)
	})
	return instance
}

// NewManager builds an independent registry, useful for tests that don't
// want to share the process-wide singleton.
func NewManager(cfg controller.Config, store controller.TurnSink) *Manager {
	m := &Manager{
		rooms:  make(map[string]*entry),
		cfg:    cfg,
		store:  store,
		maxAge: 24 * time.Hour,
		stopCh: make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Start creates and launches a Controller for roomID, failing with
// ErrAlreadyActive if one is already running (spec.md §4.7).
func (m *Manager) Start(ctx context.Context, roomID string, participants []roomspec.AgentSpec, initialUserInput string) (string, error) {
	m.mu.Lock()
	if e, ok := m.rooms[roomID]; ok && e.controller.Snapshot().Phase != discussion.PhaseStopped {
		m.mu.Unlock()
		return "", ErrAlreadyActive
	}

	sessionID := uuid.New().String()
	c := controller.New(roomID, participants, m.cfg, m.store)
	m.rooms[roomID] = &entry{sessionID: sessionID, controller: c, updatedAt: time.Now()}
	m.mu.Unlock()

	if err := c.Start(ctx, initialUserInput); err != nil {
		return "", err
	}
	return sessionID, nil
}

// Control applies pause/resume/stop to roomID's Controller.
func (m *Manager) Control(roomID string, action ControlAction) error {
	c, ok := m.controllerFor(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	switch action {
	case ActionPause:
		return c.Pause()
	case ActionResume:
		return c.Resume()
	case ActionStop:
		return c.Stop()
	default:
		return fmt.Errorf("unknown control action %q", action)
	}
}

// SubmitUserInput forwards content to roomID's Controller as a user turn.
func (m *Manager) SubmitUserInput(roomID, content string) error {
	c, ok := m.controllerFor(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return c.SubmitUserInput(content)
}

// SubmitHumanQuestion routes question to targetAgentID within roomID's
// Paused discussion (SPEC_FULL.md §10's human-in-the-loop supplemental).
func (m *Manager) SubmitHumanQuestion(roomID, targetAgentID, question string) error {
	c, ok := m.controllerFor(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return c.SubmitHumanQuestion(targetAgentID, question)
}

// Summarize produces roomID's end-of-session Summary (SPEC_FULL.md §10).
func (m *Manager) Summarize(ctx context.Context, roomID string) (*discussion.Summary, error) {
	c, ok := m.controllerFor(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return c.Summarize(ctx)
}

// Controller returns the live Controller for roomID, for callers (such as
// the hub bridge) that need to subscribe to its event stream directly.
func (m *Manager) Controller(roomID string) (*controller.Controller, bool) {
	return m.controllerFor(roomID)
}

// Status returns roomID's current status.
func (m *Manager) Status(roomID string) (RoomStatus, error) {
	m.mu.RLock()
	e, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return RoomStatus{}, ErrRoomNotFound
	}
	view := e.controller.Snapshot()
	return RoomStatus{
		RoomID:     roomID,
		SessionID:  e.sessionID,
		Phase:      view.Phase,
		Round:      view.Round,
		TotalTurns: view.TotalTurns,
	}, nil
}

// AllStatus returns the status of every room the registry has ever seen,
// including Stopped ones not yet swept by cleanup.
func (m *Manager) AllStatus() []RoomStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomStatus, 0, len(m.rooms))
	for roomID, e := range m.rooms {
		view := e.controller.Snapshot()
		out = append(out, RoomStatus{
			RoomID:     roomID,
			SessionID:  e.sessionID,
			Phase:      view.Phase,
			Round:      view.Round,
			TotalTurns: view.TotalTurns,
		})
	}
	return out
}

func (m *Manager) controllerFor(roomID string) (*controller.Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	return e.controller, true
}

// Close stops the background cleanup goroutine; tests that build their own
// Manager via NewManager should call this to avoid leaking the ticker.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// cleanup removes Stopped rooms older than maxAge, mirroring the teacher's
// DebateManager.cleanup 1-hour sweep.
func (m *Manager) cleanup() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			for roomID, e := range m.rooms {
				view := e.controller.Snapshot()
				if view.Phase == discussion.PhaseStopped && time.Since(e.updatedAt) > m.maxAge {
					delete(m.rooms, roomID)
				}
			}
			m.mu.Unlock()
		}
	}
}
