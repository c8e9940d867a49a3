package discussion

import "time"

// Phase is the lifecycle state of a room's discussion.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhasePaused   Phase = "paused"
	PhaseStopping Phase = "stopping"
	PhaseStopped  Phase = "stopped"
)

// UserSpeakerID is the sentinel speaker id for turns authored by the human.
const UserSpeakerID = "user"

// SVRSnapshot is the per-agent SVR scoring recorded against the turn that
// caused it to be selected, kept for audit/replay.
type SVRSnapshot struct {
	AgentID string  `json:"agent_id"`
	Stop    float64 `json:"stop"`
	Value   float64 `json:"value"`
	Repeat  float64 `json:"repeat"`
}

// RedirectRationale is the optional structured explanation a trailing JSON
// block in an agent's reply carries when the round that produced it ends in
// a redirect-to-user decision; extracted leniently since it arrives
// embedded in free text from a text-completion backend. It describes why
// the discussion paused, not any single turn, so it travels on the
// redirect_to_user event rather than on a Turn.
type RedirectRationale struct {
	Reason   string `json:"reason"`
	Question string `json:"question"`
}

// Turn is one immutable speech act. Append-only: once appended to a
// DiscussionContext, a Turn is never mutated.
type Turn struct {
	TurnID                int           `json:"turn_id"`
	RoomID                string        `json:"room_id"`
	SpeakerID             string        `json:"speaker_id"`
	Content               string        `json:"content"`
	TimestampUTC          time.Time     `json:"timestamp_utc"`
	SVRSnapshot           []SVRSnapshot `json:"svr_snapshot,omitempty"`
	CausingDecisionReason string        `json:"causing_decision_reason,omitempty"`
}
