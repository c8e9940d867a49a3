// Package controller runs one room's turn-taking loop: snapshot → SVR →
// decide → think → append → emit (spec.md §4.6). Grounded on the teacher's
// DebateOrchestrator (broadcast/Subscribe/executeAgentTurn/Run), generalized
// from a fixed phase schedule to SVR-driven speaker selection.
package controller

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/core/backend"
	"github.com/discussion-engine/orchestrator/pkg/core/decider"
	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
	"github.com/discussion-engine/orchestrator/pkg/core/svr"
	"github.com/discussion-engine/orchestrator/pkg/core/svrengine"
)

// TurnSink is the minimal persistence contract a Controller needs; a
// roomstore.RoomStore satisfies it. Kept as a local interface so this
// package doesn't import roomstore (spec.md §3's "mirrored asynchronously").
type TurnSink interface {
	SaveTurn(roomID string, turn discussion.Turn) error
}

// Config bounds one Controller's timeouts and thresholds (spec.md §5).
type Config struct {
	Backend                  backend.Config
	SVRDeadline              time.Duration
	HistoryWindow            int
	MaxSubstitutionsPerRound int
	DegradedAfterFailures    int
	ShutdownGrace            time.Duration
	DeciderParams            decider.Params
	SVRParams                svr.Params
}

// DefaultConfig matches spec.md §5/§4.6's defaults.
func DefaultConfig() Config {
	return Config{
		Backend:                  backend.DefaultConfig(),
		SVRDeadline:              svrengine.DefaultDeadline,
		HistoryWindow:            40,
		MaxSubstitutionsPerRound: 2,
		DegradedAfterFailures:    2,
		ShutdownGrace:            5 * time.Second,
		DeciderParams:            decider.DefaultParams(),
		SVRParams:                svr.DefaultParams(),
	}
}

type commandKind string

const (
	cmdPause  commandKind = "pause"
	cmdResume commandKind = "resume"
	cmdStop   commandKind = "stop"
)

type command struct {
	kind commandKind
}

// ErrAlreadyActive is returned by Start when the Controller is already
// running (mirrors spec.md §4.7's AlreadyActive, surfaced at the
// per-Controller level too).
var ErrAlreadyActive = fmt.Errorf("controller already active")

// Controller is a single room's state machine. One Controller per room;
// only its own run goroutine mutates discussion/backend/degraded state
// (spec.md §3 invariant 1, §5's single-writer discipline).
type Controller struct {
	roomID string
	ctx    *discussion.DiscussionContext
	specs  map[string]roomspec.AgentSpec

	backends map[string]*backend.Backend
	engine   *svrengine.Engine
	decider  *decider.Decider
	history  *svr.History
	store    TurnSink

	cfg Config

	mu          sync.RWMutex
	subscribers []chan Event
	degraded    map[string]int
	started     bool
	cancel      context.CancelFunc

	commands  chan command
	userMsgs  chan string
	questions chan HumanQuestion
	done      chan struct{}
}

// New builds a Controller for roomID with participants, wiring one
// backend.Backend per agent (store may be nil to disable persistence,
// useful for tests/simulations).
func New(roomID string, participants []roomspec.AgentSpec, cfg Config, store TurnSink) *Controller {
	specs := make(map[string]roomspec.AgentSpec, len(participants))
	backends := make(map[string]*backend.Backend, len(participants))
	for _, p := range participants {
		specs[p.AgentID] = p
		backends[p.AgentID] = backend.New(p, cfg.Backend)
	}

	history := svr.NewHistory()
	computer := svr.NewComputer(cfg.SVRParams, history)

	return &Controller{
		roomID:    roomID,
		ctx:       discussion.New(roomID, participants),
		specs:     specs,
		backends:  backends,
		engine:    svrengine.New(computer, cfg.SVRDeadline),
		decider:   decider.New(cfg.DeciderParams),
		history:   history,
		store:     store,
		cfg:       cfg,
		degraded:  make(map[string]int),
		commands:  make(chan command, 8),
		userMsgs:  make(chan string, 8),
		questions: make(chan HumanQuestion, 8),
		done:      make(chan struct{}),
	}
}

// RoomID returns the room this Controller owns.
func (c *Controller) RoomID() string { return c.roomID }

// Snapshot returns the current discussion state.
func (c *Controller) Snapshot() discussion.ContextView { return c.ctx.Snapshot() }

// Subscribe registers ch to receive every Event this Controller emits from
// now on. Callers must eventually call Unsubscribe.
func (c *Controller) Subscribe() chan Event {
	ch := make(chan Event, 256)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch.
func (c *Controller) Unsubscribe(ch chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.subscribers {
		if sub == ch {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

func (c *Controller) emit(ev Event) {
	ev.RoomID = c.roomID
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
			// Full channel: this event is dropped for this subscriber,
			// which stays registered. The bridge in pkg/hub is the
			// backpressure boundary, not this channel.
		}
	}
}

// Start launches the room's tick loop as a background goroutine, seeded
// with the first user turn (spec.md §4.6: Idle→Running on user_input).
// Calling Start twice returns ErrAlreadyActive.
func (c *Controller) Start(ctx context.Context, initialUserInput string) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.appendUserTurn(initialUserInput)
	c.setPhase(discussion.PhaseRunning)

	go c.run(runCtx)
	return nil
}

// SubmitUserInput appends a user turn while Running, resetting round to 0
// (spec.md §4.6). If the Controller is Idle, Start should be used instead;
// if Paused/Stopping/Stopped the input is rejected.
func (c *Controller) SubmitUserInput(content string) error {
	phase := c.ctx.Phase()
	if phase != discussion.PhaseRunning {
		return fmt.Errorf("cannot accept user input in phase %s", phase)
	}
	select {
	case c.userMsgs <- content:
		return nil
	case <-c.done:
		return fmt.Errorf("controller stopped")
	}
}

// Pause requests a transition to Paused.
func (c *Controller) Pause() error { return c.sendCommand(cmdPause) }

// Resume requests a transition back to Running.
func (c *Controller) Resume() error { return c.sendCommand(cmdResume) }

// Stop requests a transition to Stopping, then Stopped once drained. Unlike
// Pause/Resume, Stop cancels the run context directly so an in-flight
// Think is interrupted immediately rather than only between ticks
// (spec.md §5's cancellation guarantee).
func (c *Controller) Stop() error {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()
	if cancel == nil {
		return fmt.Errorf("controller not started")
	}
	cancel()
	return nil
}

func (c *Controller) sendCommand(kind commandKind) error {
	select {
	case c.commands <- command{kind: kind}:
		return nil
	case <-c.done:
		return fmt.Errorf("controller already stopped")
	}
}

func (c *Controller) setPhase(p discussion.Phase) {
	c.ctx.SetPhase(p)
	c.emit(Event{Type: EventPhaseChanged, Phase: p, DegradedAgents: c.degradedAgentIDs()})
}

// lastTurnContent returns the most recent turn's content, or "" if the
// discussion has no turns yet.
func lastTurnContent(view discussion.ContextView) string {
	if len(view.Turns) == 0 {
		return ""
	}
	return view.Turns[len(view.Turns)-1].Content
}

func (c *Controller) appendUserTurn(content string) {
	turn := discussion.Turn{SpeakerID: discussion.UserSpeakerID, Content: content}
	c.ctx.Append(turn)
	c.persist(turn)
}

func (c *Controller) persist(turn discussion.Turn) {
	if c.store == nil {
		return
	}
	go func() {
		if err := c.store.SaveTurn(c.roomID, turn); err != nil {
			log.Printf("controller %s: persisting turn %d: %v", c.roomID, turn.TurnID, err)
		}
	}()
}

// run is the Controller's single-writer goroutine: every mutation of
// discussion/backend/degraded state happens here and nowhere else.
func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	defer c.setPhase(discussion.PhaseStopped)

	for {
		switch c.ctx.Phase() {
		case discussion.PhaseRunning:
			if !c.runningStep(ctx) {
				return
			}
		case discussion.PhasePaused:
			if !c.pausedStep(ctx) {
				return
			}
		default:
			return
		}
	}
}

// runningStep executes at most one tick, or drains one pending command /
// user message. Returns false when the Controller should exit run().
func (c *Controller) runningStep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		c.setPhase(discussion.PhaseStopping)
		c.setPhase(discussion.PhaseStopped)
		return false
	case cmd := <-c.commands:
		return c.applyCommand(ctx, cmd)
	case content := <-c.userMsgs:
		c.appendUserTurn(content)
		return true
	default:
	}

	view := c.ctx.Snapshot()
	tuples := c.engine.Compute(ctx, view)
	c.emit(Event{Type: EventSVRComputed, SVRScores: tuples})

	d := c.decider.Decide(tuples, view, c.degradedSnapshot())
	c.emit(Event{Type: EventDecisionMade, Decision: &d})

	switch d.Action {
	case decider.ActionContinue:
		c.executeTurnWithSubstitution(ctx, tuples, d, view)
		return true
	case decider.ActionStop:
		c.setPhase(discussion.PhaseStopping)
		c.setPhase(discussion.PhaseStopped)
		return false
	case decider.ActionPause:
		c.setPhase(discussion.PhasePaused)
		return true
	case decider.ActionRedirectUser:
		c.emit(Event{
			Type:              EventRedirectToUser,
			RedirectRationale: extractRedirectRationale(lastTurnContent(view)),
		})
		c.setPhase(discussion.PhasePaused)
		return true
	default:
		return true
	}
}

func (c *Controller) pausedStep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		c.setPhase(discussion.PhaseStopping)
		c.setPhase(discussion.PhaseStopped)
		return false
	case cmd := <-c.commands:
		return c.applyCommand(ctx, cmd)
	case content := <-c.userMsgs:
		c.appendUserTurn(content)
		c.setPhase(discussion.PhaseRunning)
		return true
	case q := <-c.questions:
		c.processHumanQuestion(ctx, q)
		return true
	}
}

func (c *Controller) applyCommand(ctx context.Context, cmd command) bool {
	switch cmd.kind {
	case cmdPause:
		if c.ctx.Phase() == discussion.PhaseRunning {
			c.setPhase(discussion.PhasePaused)
		}
		return true
	case cmdResume:
		if c.ctx.Phase() == discussion.PhasePaused {
			c.setPhase(discussion.PhaseRunning)
		}
		return true
	case cmdStop:
		c.setPhase(discussion.PhaseStopping)
		c.setPhase(discussion.PhaseStopped)
		return false
	default:
		return true
	}
}

// executeTurnWithSubstitution calls the selected agent's Think; on any
// failure other than Canceled it substitutes the next-highest-scoring
// eligible agent, up to cfg.MaxSubstitutionsPerRound substitutions in all.
// A Permanent or PolicyBlocked failure also counts against the agent, which
// is degraded once its count reaches cfg.DegradedAfterFailures (spec.md
// §4.6/§7).
func (c *Controller) executeTurnWithSubstitution(ctx context.Context, tuples []svr.Tuple, d decider.Decision, view discussion.ContextView) {
	candidates := rankedCandidates(tuples, d.SelectedAgentID, c.degradedSnapshot())
	substitutions := 0

	for i, agentID := range candidates {
		if i > 0 {
			if substitutions >= c.cfg.MaxSubstitutionsPerRound {
				break
			}
			substitutions++
		}

		spec, ok := c.specs[agentID]
		if !ok {
			continue
		}

		c.emit(Event{Type: EventTurnStarted, AgentID: agentID})

		history := toHistoryEntries(c.ctx.RecentWindow(c.cfg.HistoryWindow))
		text, _, err := c.backends[agentID].Think(ctx, rolePrompt(spec, view), history)
		if err != nil {
			class := backend.ClassOf(err)
			c.emit(Event{Type: EventTurnFailed, AgentID: agentID, Reason: string(class)})
			if class == backend.ErrPermanent || class == backend.ErrPolicyBlocked {
				c.markDegraded(agentID)
			}
			if class == backend.ErrCanceled {
				return
			}
			continue
		}

		turn := discussion.Turn{
			SpeakerID:             agentID,
			Content:               text,
			SVRSnapshot:           toSnapshots(tuples),
			CausingDecisionReason: string(d.Reason),
		}
		turnID := c.ctx.Append(turn)
		turn.TurnID = turnID
		c.history.Observe(agentID, scoreFor(tuples, agentID))
		c.persist(turn)
		c.emit(Event{Type: EventTurnCompleted, AgentID: agentID, Turn: &turn})
		return
	}
}

func (c *Controller) degradedSnapshot() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(c.degraded))
	for id, n := range c.degraded {
		if n >= c.cfg.DegradedAfterFailures {
			out[id] = true
		}
	}
	return out
}

func (c *Controller) markDegraded(agentID string) {
	c.mu.Lock()
	c.degraded[agentID]++
	c.mu.Unlock()
}

// degradedAgentIDs lists agentIDs currently benched (spec.md §4.6's
// degraded-agent rule), sorted for a stable wire representation.
func (c *Controller) degradedAgentIDs() []string {
	snapshot := c.degradedSnapshot()
	if len(snapshot) == 0 {
		return nil
	}
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// rankedCandidates orders eligible agents by descending score, starting
// from the decider's chosen agent, for use as the substitution sequence.
func rankedCandidates(tuples []svr.Tuple, selected string, degraded map[string]bool) []string {
	type scored struct {
		agentID string
		score   float64
	}
	var eligible []scored
	for _, t := range tuples {
		if !t.Valid() || degraded[t.AgentID] {
			continue
		}
		eligible = append(eligible, scored{t.AgentID, t.Value * (1 - t.Repeat) * (1 - 0.5*t.Stop)})
	}
	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].score > eligible[j].score })

	ordered := make([]string, 0, len(eligible))
	if selected != "" {
		ordered = append(ordered, selected)
	}
	for _, s := range eligible {
		if s.agentID != selected {
			ordered = append(ordered, s.agentID)
		}
	}
	return ordered
}

func scoreFor(tuples []svr.Tuple, agentID string) float64 {
	for _, t := range tuples {
		if t.AgentID == agentID {
			return t.Value
		}
	}
	return 0.5
}

func toHistoryEntries(turns []discussion.Turn) []backend.HistoryEntry {
	out := make([]backend.HistoryEntry, 0, len(turns))
	for _, t := range turns {
		out = append(out, backend.HistoryEntry{SpeakerID: t.SpeakerID, Content: t.Content})
	}
	return out
}

func toSnapshots(tuples []svr.Tuple) []discussion.SVRSnapshot {
	out := make([]discussion.SVRSnapshot, 0, len(tuples))
	for _, t := range tuples {
		out = append(out, discussion.SVRSnapshot{AgentID: t.AgentID, Stop: t.Stop, Value: t.Value, Repeat: t.Repeat})
	}
	return out
}

func rolePrompt(spec roomspec.AgentSpec, view discussion.ContextView) string {
	if last, ok := view.LastUserTurn(); ok {
		return fmt.Sprintf("You are %s (%s). The human most recently said: %q. Continue the discussion with your next contribution.", spec.DisplayName, spec.Role, last.Content)
	}
	return fmt.Sprintf("You are %s (%s). Continue the discussion with your next contribution.", spec.DisplayName, spec.Role)
}
