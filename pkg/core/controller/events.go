package controller

import (
	"github.com/discussion-engine/orchestrator/pkg/core/decider"
	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/svr"
)

// EventType is the closed set of observable events a Controller emits per
// tick, in the fixed order spec.md §5 requires: svr_computed →
// decision_made → turn_started → (turn_completed | turn_failed), plus
// asynchronous phase_changed and redirect_to_user events.
type EventType string

const (
	EventSVRComputed    EventType = "svr_computed"
	EventDecisionMade   EventType = "decision_made"
	EventTurnStarted    EventType = "turn_started"
	EventTurnCompleted  EventType = "turn_completed"
	EventTurnFailed     EventType = "turn_failed"
	EventPhaseChanged   EventType = "phase_changed"
	EventRedirectToUser EventType = "redirect_to_user"
)

// Event is what a Controller publishes to its subscribers (normally the
// ClientHub bridge, see pkg/hub). RoomID is always set so a subscriber that
// fans out multiple rooms can route without re-wrapping.
type Event struct {
	Type              EventType
	RoomID            string
	SVRScores         []svr.Tuple                  `json:",omitempty"`
	Decision          *decider.Decision             `json:",omitempty"`
	Turn              *discussion.Turn              `json:",omitempty"`
	AgentID           string                        `json:",omitempty"`
	Phase             discussion.Phase              `json:",omitempty"`
	Reason            string                        `json:",omitempty"`
	DegradedAgents    []string                      `json:",omitempty"`
	RedirectRationale *discussion.RedirectRationale `json:",omitempty"`
}
