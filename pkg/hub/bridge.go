package hub

import (
	"github.com/discussion-engine/orchestrator/pkg/core/controller"
	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
)

// BridgeController subscribes to c's events for roomID and republishes each
// as an Envelope on h, until c reaches Stopped. Intended to be started once
// per room, typically right after framework.Manager.Start.
func BridgeController(h *Hub, roomID string, c *controller.Controller) {
	sub := c.Subscribe()
	go func() {
		defer c.Unsubscribe(sub)
		for ev := range sub {
			env, ok := envelopeFor(ev)
			if !ok {
				continue
			}
			h.Publish(roomID, env)
			if ev.Type == controller.EventPhaseChanged && ev.Phase == discussion.PhaseStopped {
				return
			}
		}
	}()
}

// envelopeFor maps one Controller event to its wire shape (spec.md §4.8,
// §6's outbound message catalogue).
func envelopeFor(ev controller.Event) (Envelope, bool) {
	switch ev.Type {
	case controller.EventSVRComputed:
		return Envelope{Type: "svr_computed", Payload: map[string]interface{}{"scores": ev.SVRScores}}, true
	case controller.EventDecisionMade:
		return Envelope{Type: "decision_made", Payload: map[string]interface{}{
			"action":           ev.Decision.Action,
			"reason":           ev.Decision.Reason,
			"selected_agent_id": ev.Decision.SelectedAgentID,
		}}, true
	case controller.EventTurnStarted:
		return Envelope{Type: "turn_started", Payload: map[string]interface{}{"agent_id": ev.AgentID}}, true
	case controller.EventTurnCompleted:
		seq := 0
		if ev.Turn != nil {
			seq = ev.Turn.TurnID
		}
		return Envelope{Type: "new_message", Sequence: seq, Payload: newMessagePayload(ev)}, true
	case controller.EventTurnFailed:
		return Envelope{Type: "error", Payload: map[string]interface{}{
			"error_code": errorCodeForClass(ev.Reason),
			"agent_id":   ev.AgentID,
			"reason":     ev.Reason,
		}}, true
	case controller.EventPhaseChanged:
		return Envelope{Type: "phase_changed", Payload: map[string]interface{}{
			"phase":           ev.Phase,
			"degraded_agents": ev.DegradedAgents,
		}}, true
	case controller.EventRedirectToUser:
		return Envelope{Type: "redirect_to_user", Payload: map[string]interface{}{
			"rationale": ev.RedirectRationale,
		}}, true
	default:
		return Envelope{}, false
	}
}

// errorCodeForClass maps a backend.ErrorClass (carried as ev.Reason's raw
// string, since pkg/hub doesn't import pkg/core/backend) to the stable wire
// error code spec.md §6 defines. Classes with no dedicated code collapse
// into the closest one: policy_blocked and permanent both mean "this agent
// cannot continue", transient/canceled both mean "this attempt didn't
// produce a reply in time".
func errorCodeForClass(class string) string {
	switch class {
	case "permanent", "policy_blocked":
		return "AGENT_PERMANENT"
	case "timeout", "transient", "canceled":
		return "AGENT_TIMEOUT"
	default:
		return "AGENT_TIMEOUT"
	}
}

func newMessagePayload(ev controller.Event) map[string]interface{} {
	if ev.Turn == nil {
		return nil
	}
	return map[string]interface{}{
		"message_id": ev.Turn.TurnID,
		"agent_name": ev.AgentID,
		"message": map[string]interface{}{
			"sender":       ev.Turn.SpeakerID,
			"content":      ev.Turn.Content,
			"timestamp":    ev.Turn.TimestampUTC,
			"message_type": "agent",
		},
	}
}
