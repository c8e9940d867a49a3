// Package svr computes the per-agent Stop/Value/Repeat scoring tuple that
// drives turn-taking. Every computation here is pure and CPU-only: no
// network calls, no blocking I/O (spec.md §4.3/§4.4).
package svr

import (
	"math"
	"strings"

	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
)

// Tuple is one agent's SVR scoring for a round. Err is set when the
// computation could not complete (e.g. the engine's svrDeadline elapsed);
// a tuple with Err is excluded from selection but never fails the round
// (spec.md §4.3).
type Tuple struct {
	AgentID string
	Stop    float64
	Value   float64
	Repeat  float64
	Err     error
}

// Valid reports whether this tuple can be used by the decider.
func (t Tuple) Valid() bool { return t.Err == nil }

// Weights holds the configurable sub-score weights for all three
// dimensions. Zero-value Weights is invalid; use DefaultWeights.
type Weights struct {
	StopConsensus float64
	StopSaturation float64
	StopFatigue    float64
	StopGlobal     float64
	StopTime       float64

	ValueQuality     float64
	ValueHistory     float64
	ValueInteraction float64
	ValueTopical     float64

	RepeatSelfSimilarity  float64
	RepeatPatternRepeat   float64
	RepeatArgumentRecycle float64
	RepeatFrequency       float64
}

// DefaultWeights matches the reconciled defaults in spec.md §4.3.
func DefaultWeights() Weights {
	return Weights{
		StopConsensus:  0.30,
		StopSaturation: 0.25,
		StopFatigue:    0.15,
		StopGlobal:     0.20,
		StopTime:       0.10,

		ValueQuality:     0.35,
		ValueHistory:     0.25,
		ValueInteraction: 0.25,
		ValueTopical:     0.15,

		RepeatSelfSimilarity:  0.40,
		RepeatPatternRepeat:   0.25,
		RepeatArgumentRecycle: 0.20,
		RepeatFrequency:       0.15,
	}
}

// Params holds the sub-score weights and maxDuration (the time factor's
// bound, in seconds).
type Params struct {
	Weights     Weights
	MaxDuration float64 // seconds
}

// DefaultParams wires DefaultWeights with spec.md §5's maxDuration=3600s.
func DefaultParams() Params {
	return Params{Weights: DefaultWeights(), MaxDuration: 3600}
}

// History tracks per-agent rolling state a single-shot pure function can't
// see from ContextView alone: EWMA of past value realizations. The
// Controller owns one History per room and feeds it back in between rounds.
type History struct {
	ewmaValue map[string]float64
}

// NewHistory creates an empty rolling-history tracker.
func NewHistory() *History {
	return &History{ewmaValue: make(map[string]float64)}
}

// Observe folds a realized value score into the EWMA for agentID.
func (h *History) Observe(agentID string, value float64) {
	const alpha = 0.3
	prev, ok := h.ewmaValue[agentID]
	if !ok {
		h.ewmaValue[agentID] = value
		return
	}
	h.ewmaValue[agentID] = alpha*value + (1-alpha)*prev
}

func (h *History) valueEWMA(agentID string) float64 {
	v, ok := h.ewmaValue[agentID]
	if !ok {
		return 0.5 // neutral prior for an agent with no history yet
	}
	return v
}

// Computer computes SVR tuples for a room's participants given a context
// snapshot. It holds no mutable state beyond Params and a History pointer,
// making it safe to share across goroutines (spec.md §4.4 fans out one
// Computer call per participant in parallel).
type Computer struct {
	params  Params
	history *History
}

// NewComputer builds a Computer. history may be shared across calls across
// rounds so value's EWMA sub-score accumulates session-long.
func NewComputer(params Params, history *History) *Computer {
	if history == nil {
		history = NewHistory()
	}
	return &Computer{params: params, history: history}
}

// Compute returns agent's SVR tuple for the given snapshot. Pure function of
// its inputs plus the shared History (spec.md §4.6 invariant 6 applies to
// the Decider, not here; Computer is allowed session-long memory by design).
func (c *Computer) Compute(agent roomspec.AgentSpec, ctxView discussion.ContextView) Tuple {
	w := c.params.Weights

	stop := w.StopConsensus*consensusContribution(agent, ctxView) +
		w.StopSaturation*saturation(ctxView) +
		w.StopFatigue*fatigue(agent, ctxView) +
		w.StopGlobal*globalStopSignal(ctxView) +
		w.StopTime*timeFactor(ctxView, c.params.MaxDuration)

	value := w.ValueQuality*turnQuality(agent, ctxView) +
		w.ValueHistory*c.history.valueEWMA(agent.AgentID) +
		w.ValueInteraction*interactionPotential(agent, ctxView) +
		w.ValueTopical*topicalRelevance(agent, ctxView)

	repeat := w.RepeatSelfSimilarity*selfSimilarity(agent, ctxView) +
		w.RepeatPatternRepeat*patternRepetition(agent, ctxView) +
		w.RepeatArgumentRecycle*argumentRecycling(agent, ctxView) +
		w.RepeatFrequency*frequencyRisk(agent, ctxView)

	return Tuple{
		AgentID: agent.AgentID,
		Stop:    clip01(stop),
		Value:   clip01(value),
		Repeat:  clip01(repeat),
	}
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// --- stop sub-scores ---

func consensusContribution(agent roomspec.AgentSpec, ctxView discussion.ContextView) float64 {
	mine := digestFromTurns(lastNByAgent(ctxView.Turns, agent.AgentID, 1))
	if len(mine) == 0 {
		return 0
	}
	var total float64
	count := 0
	for _, other := range ctxView.Participants {
		if other.AgentID == agent.AgentID {
			continue
		}
		theirs := digestFromTurns(lastNByAgent(ctxView.Turns, other.AgentID, 1))
		if len(theirs) == 0 {
			continue
		}
		total += discussion.JaccardDistance(mine, theirs)
		count++
	}
	if count == 0 {
		return 0
	}
	meanDisagreement := total / float64(count)
	return 1 - meanDisagreement
}

func saturation(ctxView discussion.ContextView) float64 {
	softCap := math.Max(6, 2*float64(len(ctxView.Participants)))
	return math.Min(1, float64(ctxView.Round)/softCap)
}

func fatigue(agent roomspec.AgentSpec, ctxView discussion.ContextView) float64 {
	share := participationShare(ctxView, agent.AgentID)
	if share >= 0.6 {
		return 1
	}
	return share / 0.6
}

func globalStopSignal(ctxView discussion.ContextView) float64 {
	return 1 - normalizedEntropy(recentSpeakerCounts(ctxView))
}

func timeFactor(ctxView discussion.ContextView, maxDuration float64) float64 {
	if maxDuration <= 0 {
		return 0
	}
	return math.Min(1, ctxView.Elapsed().Seconds()/maxDuration)
}

// --- value sub-scores ---

func turnQuality(agent roomspec.AgentSpec, ctxView discussion.ContextView) float64 {
	turns := lastNByAgent(ctxView.Turns, agent.AgentID, 3)
	if len(turns) == 0 {
		return 0.5
	}
	var total float64
	for _, t := range turns {
		total += singleTurnQuality(t.Content)
	}
	return total / float64(len(turns))
}

func singleTurnQuality(content string) float64 {
	n := len(content)
	lengthScore := 1.0
	switch {
	case n < 40:
		lengthScore = float64(n) / 40
	case n > 600:
		lengthScore = math.Max(0, 1-float64(n-600)/600)
	}

	tokens := strings.Fields(strings.ToLower(content))
	uniqueness := 1.0
	if len(tokens) > 0 {
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			seen[tok] = struct{}{}
		}
		uniqueness = float64(len(seen)) / float64(len(tokens))
	}

	return clip01(0.5*lengthScore + 0.5*uniqueness)
}

func interactionPotential(agent roomspec.AgentSpec, ctxView discussion.ContextView) float64 {
	n := len(ctxView.Participants)
	if n == 0 {
		return 1
	}
	sinceLast := turnsSinceLastSpoke(ctxView.Turns, agent.AgentID)
	if sinceLast >= n {
		return 1
	}
	return float64(sinceLast) / float64(n)
}

func topicalRelevance(agent roomspec.AgentSpec, ctxView discussion.ContextView) float64 {
	lastUser, ok := ctxView.LastUserTurn()
	if !ok {
		return 0
	}
	roleTokens := tokenSet(agent.SystemPrompt + " " + agent.Role)
	userTokens := tokenSet(lastUser.Content)
	return jaccardSets(roleTokens, userTokens)
}

// --- repeat sub-scores ---

func selfSimilarity(agent roomspec.AgentSpec, ctxView discussion.ContextView) float64 {
	turns := lastNByAgent(ctxView.Turns, agent.AgentID, 10)
	if len(turns) < 2 {
		return 0
	}
	last := digestFromTurns(turns[len(turns)-1:])
	prior := digestFromTurns(turns[:len(turns)-1])
	return 1 - discussion.JaccardDistance(last, prior)
}

func patternRepetition(agent roomspec.AgentSpec, ctxView discussion.ContextView) float64 {
	turns := lastNByAgent(ctxView.Turns, agent.AgentID, 2)
	if len(turns) < 2 {
		return 0
	}
	gramsA := ngrams(turns[0].Content, 3)
	gramsB := ngrams(turns[1].Content, 3)
	return jaccardSets(gramsA, gramsB)
}

func argumentRecycling(agent roomspec.AgentSpec, ctxView discussion.ContextView) float64 {
	mine := lastNByAgent(ctxView.Turns, agent.AgentID, 1)
	if len(mine) == 0 {
		return 0
	}
	mineTokens := tokenSet(mine[0].Content)
	if len(mineTokens) == 0 {
		return 0
	}
	var best float64
	for _, t := range ctxView.Turns {
		if t.SpeakerID == agent.AgentID && t.TurnID == mine[0].TurnID {
			continue
		}
		overlap := jaccardSets(mineTokens, tokenSet(t.Content))
		if overlap > best {
			best = overlap
		}
	}
	return best
}

func frequencyRisk(agent roomspec.AgentSpec, ctxView discussion.ContextView) float64 {
	return participationShare(ctxView, agent.AgentID)
}

// --- shared helpers ---

func participationShare(ctxView discussion.ContextView, agentID string) float64 {
	const window = 10
	turns := ctxView.Turns
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	if len(turns) == 0 {
		return 0
	}
	count := 0
	for _, t := range turns {
		if t.SpeakerID == agentID {
			count++
		}
	}
	return float64(count) / float64(len(turns))
}

func recentSpeakerCounts(ctxView discussion.ContextView) map[string]int {
	const window = 10
	turns := ctxView.Turns
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	counts := make(map[string]int)
	for _, t := range turns {
		counts[t.SpeakerID]++
	}
	return counts
}

func normalizedEntropy(counts map[string]int) float64 {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 || len(counts) <= 1 {
		return 0
	}
	var h float64
	for _, n := range counts {
		if n == 0 {
			continue
		}
		p := float64(n) / float64(total)
		h -= p * math.Log2(p)
	}
	maxH := math.Log2(float64(len(counts)))
	if maxH == 0 {
		return 0
	}
	return h / maxH
}

func turnsSinceLastSpoke(turns []discussion.Turn, agentID string) int {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].SpeakerID == agentID {
			return len(turns) - 1 - i
		}
	}
	return len(turns)
}

func lastNByAgent(turns []discussion.Turn, agentID string, n int) []discussion.Turn {
	var out []discussion.Turn
	for i := len(turns) - 1; i >= 0 && len(out) < n; i-- {
		if turns[i].SpeakerID == agentID {
			out = append([]discussion.Turn{turns[i]}, out...)
		}
	}
	return out
}

func digestFromTurns(turns []discussion.Turn) discussion.ContentDigest {
	digest := discussion.ContentDigest{}
	for _, t := range turns {
		for tok := range tokenSet(t.Content) {
			digest[tok]++
		}
	}
	return digest
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		out[tok] = struct{}{}
	}
	return out
}

func jaccardSets(a, b map[string]struct{}) float64 {
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
	return float64(inter) / float64(len(union))
}

func ngrams(s string, n int) map[string]struct{} {
	tokens := strings.Fields(strings.ToLower(s))
	out := make(map[string]struct{})
	if len(tokens) < n {
		return out
	}
	for i := 0; i+n <= len(tokens); i++ {
		out[strings.Join(tokens[i:i+n], " ")] = struct{}{}
	}
	return out
}
