// Package decider turns an SVR snapshot into exactly one Decision, by a
// deterministic, ordered rule list (spec.md §4.5). Decide never calls out,
// never blocks, and is pure in its inputs so it is trivially unit-testable
// and replayable.
package decider

import (
	"sort"

	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/svr"
)

// Action is the closed set of outcomes a Decision can carry.
type Action string

const (
	ActionContinue     Action = "continue"
	ActionStop         Action = "stop"
	ActionPause        Action = "pause"
	ActionRedirectUser Action = "redirect_to_user"
)

// Reason is a stable, loggable string naming why a Decision was reached.
type Reason string

const (
	ReasonBudget          Reason = "budget"
	ReasonConsensus       Reason = "consensus"
	ReasonLowValue        Reason = "low-value"
	ReasonTopScore        Reason = "top-score"
	ReasonAllAgentsFailed Reason = "all-agents-failed"
)

// Decision is the Decider's sole output type.
type Decision struct {
	Action          Action
	Reason          Reason
	SelectedAgentID string // set only when Action == ActionContinue
}

// Params bounds the rule list's thresholds (spec.md §4.5 defaults).
type Params struct {
	MaxTurns            int
	MaxDurationSeconds  float64
	StopThreshold       float64
	QualityFloor        float64
	MinRoundsBeforeStop int
}

// DefaultParams matches spec.md §4.5/§5.
func DefaultParams() Params {
	return Params{
		MaxTurns:            50,
		MaxDurationSeconds:  3600,
		StopThreshold:       0.80,
		QualityFloor:        0.20,
		MinRoundsBeforeStop: 2,
	}
}

// Decider evaluates the fixed rule list against one round's tuples.
type Decider struct {
	params Params
}

// New builds a Decider bound to params.
func New(params Params) *Decider {
	return &Decider{params: params}
}

// Decide applies the rules in spec.md §4.5, first match wins. degraded
// marks agentIDs the Controller has benched for the session; their tuples
// are still passed in (so the audit log is complete) but are treated as
// ineligible for selection, exactly like an errored tuple.
func (d *Decider) Decide(tuples []svr.Tuple, view discussion.ContextView, degraded map[string]bool) Decision {
	// Rule 1: hard stop on budget.
	if view.TotalTurns >= d.params.MaxTurns || view.Elapsed().Seconds() >= d.params.MaxDurationSeconds {
		return Decision{Action: ActionStop, Reason: ReasonBudget}
	}

	eligible := eligibleTuples(tuples, degraded)

	// Rule 2: consensus stop.
	if view.Round >= d.params.MinRoundsBeforeStop && len(eligible) > 0 {
		if meanStop(eligible) >= d.params.StopThreshold {
			return Decision{Action: ActionStop, Reason: ReasonConsensus}
		}
	}

	// Rule 3: quality floor.
	if view.Round >= d.params.MinRoundsBeforeStop && len(eligible) > 0 {
		if maxValue(eligible) < d.params.QualityFloor {
			return Decision{Action: ActionRedirectUser, Reason: ReasonLowValue}
		}
	}

	// Rule 4: continue, selecting the top score.
	if len(eligible) > 0 {
		selected := selectTopScore(eligible, view)
		return Decision{Action: ActionContinue, Reason: ReasonTopScore, SelectedAgentID: selected}
	}

	// Rule 5: everyone failed.
	return Decision{Action: ActionPause, Reason: ReasonAllAgentsFailed}
}

func eligibleTuples(tuples []svr.Tuple, degraded map[string]bool) []svr.Tuple {
	out := make([]svr.Tuple, 0, len(tuples))
	for _, t := range tuples {
		if !t.Valid() {
			continue
		}
		if degraded != nil && degraded[t.AgentID] {
			continue
		}
		out = append(out, t)
	}
	return out
}

func meanStop(tuples []svr.Tuple) float64 {
	var total float64
	for _, t := range tuples {
		total += t.Stop
	}
	return total / float64(len(tuples))
}

func maxValue(tuples []svr.Tuple) float64 {
	max := tuples[0].Value
	for _, t := range tuples[1:] {
		if t.Value > max {
			max = t.Value
		}
	}
	return max
}

// score implements spec.md §4.5's selection formula:
// value · (1 − repeat) · (1 − 0.5·stop).
func score(t svr.Tuple) float64 {
	return t.Value * (1 - t.Repeat) * (1 - 0.5*t.Stop)
}

// selectTopScore picks the maximizing agent, breaking ties by lowest
// recent participation then lowest agentID lexicographically.
func selectTopScore(tuples []svr.Tuple, view discussion.ContextView) string {
	participation := participationLookup(view)

	best := append([]svr.Tuple(nil), tuples...)
	sort.SliceStable(best, func(i, j int) bool {
		si, sj := score(best[i]), score(best[j])
		if si != sj {
			return si > sj
		}
		pi, pj := participation[best[i].AgentID], participation[best[j].AgentID]
		if pi != pj {
			return pi < pj
		}
		return best[i].AgentID < best[j].AgentID
	})

	return best[0].AgentID
}

func participationLookup(view discussion.ContextView) map[string]float64 {
	const window = 10
	turns := view.Turns
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	counts := make(map[string]int)
	for _, t := range turns {
		counts[t.SpeakerID]++
	}
	stats := make(map[string]float64, len(view.Participants))
	total := float64(len(turns))
	for _, p := range view.Participants {
		if total == 0 {
			stats[p.AgentID] = 0
			continue
		}
		stats[p.AgentID] = float64(counts[p.AgentID]) / total
	}
	return stats
}
