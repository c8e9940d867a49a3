package svr

import (
	"testing"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
)

func agents() []roomspec.AgentSpec {
	return []roomspec.AgentSpec{
		roomspec.New("a1", "Alpha", "proponent", "argue for growth", roomspec.PlatformMock, roomspec.ModelParams{}),
		roomspec.New("a2", "Beta", "skeptic", "argue against growth", roomspec.PlatformMock, roomspec.ModelParams{}),
	}
}

func viewWithTurns(turns []discussion.Turn, round int) discussion.ContextView {
	return discussion.ContextView{
		Turns:        turns,
		Participants: agents(),
		Round:        round,
		StartedAt:    time.Now().Add(-time.Minute),
		Now:          time.Now(),
	}
}

func TestComputeClipsAllDimensionsToUnitRange(t *testing.T) {
	c := NewComputer(DefaultParams(), nil)
	turns := []discussion.Turn{
		{TurnID: 1, SpeakerID: "a1", Content: "growth is strong this quarter across every segment"},
		{TurnID: 2, SpeakerID: "a2", Content: "growth is strong this quarter across every segment"},
	}
	view := viewWithTurns(turns, 3)

	tuple := c.Compute(agents()[0], view)

	for _, v := range []float64{tuple.Stop, tuple.Value, tuple.Repeat} {
		if v < 0 || v > 1 {
			t.Fatalf("want value in [0,1], got %f", v)
		}
	}
}

func TestRepeatHighWhenAgentRepeatsItself(t *testing.T) {
	c := NewComputer(DefaultParams(), nil)
	turns := []discussion.Turn{
		{TurnID: 1, SpeakerID: "a1", Content: "the market is volatile and risky right now"},
		{TurnID: 2, SpeakerID: "a2", Content: "unrelated different counterpoint entirely"},
		{TurnID: 3, SpeakerID: "a1", Content: "the market is volatile and risky right now"},
	}
	view := viewWithTurns(turns, 2)

	repeating := c.Compute(agents()[0], view)
	fresh := c.Compute(agents()[1], view)

	if repeating.Repeat <= fresh.Repeat {
		t.Fatalf("want repeating agent's repeat score higher, got repeating=%f fresh=%f", repeating.Repeat, fresh.Repeat)
	}
}

func TestSaturationIncreasesWithRound(t *testing.T) {
	view := discussion.ContextView{Participants: agents(), Round: 0, StartedAt: time.Now(), Now: time.Now()}
	lowRound := saturation(view)

	view.Round = 20
	highRound := saturation(view)

	if highRound <= lowRound {
		t.Fatalf("want saturation to grow with round, got low=%f high=%f", lowRound, highRound)
	}
	if highRound > 1 {
		t.Fatalf("want saturation clipped to 1, got %f", highRound)
	}
}

func TestHistoryEWMATracksObservations(t *testing.T) {
	h := NewHistory()
	if got := h.valueEWMA("a1"); got != 0.5 {
		t.Fatalf("want neutral prior 0.5 for unseen agent, got %f", got)
	}

	h.Observe("a1", 0.9)
	h.Observe("a1", 0.9)
	h.Observe("a1", 0.9)

	if got := h.valueEWMA("a1"); got < 0.7 {
		t.Fatalf("want EWMA to converge toward repeated high observations, got %f", got)
	}
}

func TestTopicalRelevanceZeroWithoutUserTurn(t *testing.T) {
	view := viewWithTurns(nil, 0)
	got := topicalRelevance(agents()[0], view)
	if got != 0 {
		t.Fatalf("want 0 relevance with no user turn, got %f", got)
	}
}
