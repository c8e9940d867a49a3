package discussion

import (
	"strings"
	"sync"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
)

// defaultParticipationWindow is W from spec.md §4.2 ("last W turns").
const defaultParticipationWindow = 10

// ContextView is a read-only, cheap-to-copy snapshot of a DiscussionContext.
// It holds shallow references to immutable turns plus primitive counters, so
// taking a Snapshot never mutates the underlying context and never blocks a
// concurrent Append for long.
type ContextView struct {
	RoomID          string
	Turns           []Turn // shared backing array; never mutated by callers
	Participants    []roomspec.AgentSpec
	Phase           Phase
	Round           int
	TotalTurns      int
	StartedAt       time.Time
	LastUserInputAt time.Time
	Now             time.Time
}

// Elapsed returns the wall-clock duration since the session started.
func (v ContextView) Elapsed() time.Duration {
	if v.StartedAt.IsZero() {
		return 0
	}
	return v.Now.Sub(v.StartedAt)
}

// LastTurnBy returns the most recent turn authored by speakerID, if any.
func (v ContextView) LastTurnBy(speakerID string) (Turn, bool) {
	for i := len(v.Turns) - 1; i >= 0; i-- {
		if v.Turns[i].SpeakerID == speakerID {
			return v.Turns[i], true
		}
	}
	return Turn{}, false
}

// LastUserTurn returns the most recent user-authored turn, if any.
func (v ContextView) LastUserTurn() (Turn, bool) {
	return v.LastTurnBy(UserSpeakerID)
}

// DiscussionContext is the single per-room append-only turn log plus the
// participation/phase bookkeeping a Controller drives. All derived
// statistics are deterministic functions of turns (spec.md §4.2).
type DiscussionContext struct {
	mu sync.Mutex

	roomID          string
	turns           []Turn
	participants    []roomspec.AgentSpec
	phase           Phase
	round           int
	totalTurns      int
	startedAt       time.Time
	lastUserInputAt time.Time
	nextTurnID      int
}

// New creates a context for roomID with the given participant roster. Phase
// starts Idle per spec.md §3 invariant 4.
func New(roomID string, participants []roomspec.AgentSpec) *DiscussionContext {
	return &DiscussionContext{
		roomID:       roomID,
		participants: append([]roomspec.AgentSpec(nil), participants...),
		phase:        PhaseIdle,
		nextTurnID:   1,
	}
}

// Phase returns the current lifecycle phase.
func (c *DiscussionContext) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SetPhase transitions the phase. Callers (the Controller) are responsible
// for only issuing legal transitions per spec.md §4.6's state graph; this
// type does not itself validate the graph since a single Controller owns
// this context and is the sole writer (spec.md §3 invariant 1).
func (c *DiscussionContext) SetPhase(p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = p
}

// Participants returns a copy of the room's agent roster.
func (c *DiscussionContext) Participants() []roomspec.AgentSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]roomspec.AgentSpec(nil), c.participants...)
}

// Append assigns the next turnID and appends turn to the log. O(1). The
// caller must only call this from the owning Controller's single-writer
// goroutine (spec.md §3 invariant 1/3).
func (c *DiscussionContext) Append(turn Turn) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	turn.RoomID = c.roomID
	turn.TurnID = c.nextTurnID
	c.nextTurnID++
	if turn.TimestampUTC.IsZero() {
		turn.TimestampUTC = time.Now().UTC()
	}

	c.turns = append(c.turns, turn)
	c.totalTurns++

	if c.startedAt.IsZero() {
		c.startedAt = turn.TimestampUTC
	}
	if turn.SpeakerID == UserSpeakerID {
		c.lastUserInputAt = turn.TimestampUTC
		c.round = 0
	} else {
		c.round++
	}

	return turn.TurnID
}

// Snapshot returns a read-only ContextView for the current state.
func (c *DiscussionContext) Snapshot() ContextView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ContextView{
		RoomID:          c.roomID,
		Turns:           c.turns, // shared backing array; Turn is immutable
		Participants:    append([]roomspec.AgentSpec(nil), c.participants...),
		Phase:           c.phase,
		Round:           c.round,
		TotalTurns:      c.totalTurns,
		StartedAt:       c.startedAt,
		LastUserInputAt: c.lastUserInputAt,
		Now:             time.Now().UTC(),
	}
}

// RecentWindow returns the last k turns, used for prompt construction.
func (c *DiscussionContext) RecentWindow(k int) []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k <= 0 || k >= len(c.turns) {
		return append([]Turn(nil), c.turns...)
	}
	start := len(c.turns) - k
	return append([]Turn(nil), c.turns[start:]...)
}

// ParticipationStats returns the fraction of the last W turns spoken by
// each agent (spec.md §4.2). W defaults to 10.
func (c *DiscussionContext) ParticipationStats() map[string]float64 {
	c.mu.Lock()
	window := windowOf(c.turns, defaultParticipationWindow)
	c.mu.Unlock()
	return participationStats(window)
}

func participationStats(window []Turn) map[string]float64 {
	stats := make(map[string]float64)
	if len(window) == 0 {
		return stats
	}
	counts := make(map[string]int)
	for _, t := range window {
		counts[t.SpeakerID]++
	}
	total := float64(len(window))
	for agentID, n := range counts {
		stats[agentID] = float64(n) / total
	}
	return stats
}

// ContentDigest is a normalized token multiset used by the SVR computer to
// estimate overlap/similarity between speakers.
type ContentDigest map[string]int

// ContentDigest returns the normalized token multiset over agentID's last n
// turns (spec.md §4.2 says "last 3 turns").
func (c *DiscussionContext) ContentDigest(agentID string, lastN int) ContentDigest {
	c.mu.Lock()
	turns := append([]Turn(nil), c.turns...)
	c.mu.Unlock()
	return contentDigest(turns, agentID, lastN)
}

func contentDigest(turns []Turn, agentID string, lastN int) ContentDigest {
	digest := ContentDigest{}
	found := 0
	for i := len(turns) - 1; i >= 0 && found < lastN; i-- {
		if turns[i].SpeakerID != agentID {
			continue
		}
		found++
		for _, tok := range tokenize(turns[i].Content) {
			digest[tok]++
		}
	}
	return digest
}

// JaccardDistance returns 1 - |A∩B|/|A∪B| between two digests, 0 when both
// are empty (no disagreement signal to report).
func JaccardDistance(a, b ContentDigest) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	union := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		union[k] = struct{}{}
	}
	for k := range b {
		union[k] = struct{}{}
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	if len(union) == 0 {
		return 0
	}
	return 1 - float64(inter)/float64(len(union))
}

// tokenize lower-cases and splits on whitespace/punctuation. Deliberately
// simple: SVR scoring needs a stable multiset, not linguistic accuracy.
func tokenize(s string) []string {
	s = strings.ToLower(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

func windowOf(turns []Turn, w int) []Turn {
	if w <= 0 || w >= len(turns) {
		return turns
	}
	return turns[len(turns)-w:]
}
