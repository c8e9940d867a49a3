package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/core/backend"
	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
)

// HumanQuestion is an out-of-band question an operator targets at one
// participant while a room is Paused, without ending the session. Kept as a
// supplemental interactive feature on top of spec.md's RedirectToUser pause
// (SPEC_FULL.md §10), grounded on the teacher's HumanQuestion/questionChan.
type HumanQuestion struct {
	TargetAgentID string
	Question      string
	AskedAt       time.Time
}

// SubmitHumanQuestion queues q for processing on the Controller's own
// goroutine. Only accepted while Paused, mirroring the teacher's
// questionChan-fed handleInteractivePhase window between debate phases.
func (c *Controller) SubmitHumanQuestion(targetAgentID, question string) error {
	if c.ctx.Phase() != discussion.PhasePaused {
		return fmt.Errorf("cannot submit a human question in phase %s", c.ctx.Phase())
	}
	if _, ok := c.specs[targetAgentID]; !ok {
		return fmt.Errorf("unknown agent %q", targetAgentID)
	}

	q := HumanQuestion{TargetAgentID: targetAgentID, Question: question, AskedAt: time.Now().UTC()}
	select {
	case c.questions <- q:
		return nil
	case <-c.done:
		return fmt.Errorf("controller stopped")
	}
}

// processHumanQuestion asks q.TargetAgentID's backend to answer, appending
// both the question and the reply as ordinary turns without leaving Paused.
// Grounded on the teacher's processHumanQuestion, which broadcasts the
// question then the agent's reply as regular DebateMessages.
func (c *Controller) processHumanQuestion(ctx context.Context, q HumanQuestion) {
	ask := discussion.Turn{
		SpeakerID: discussion.UserSpeakerID,
		Content:   fmt.Sprintf("[to %s] %s", q.TargetAgentID, q.Question),
	}
	askID := c.ctx.Append(ask)
	ask.TurnID = askID
	c.persist(ask)
	c.emit(Event{Type: EventTurnCompleted, AgentID: discussion.UserSpeakerID, Turn: &ask})

	b, ok := c.backends[q.TargetAgentID]
	if !ok {
		return
	}

	history := toHistoryEntries(c.ctx.RecentWindow(c.cfg.HistoryWindow))
	prompt := fmt.Sprintf("The human has a direct question for you: %q. Answer it directly.", q.Question)

	text, _, err := b.Think(ctx, prompt, history)
	if err != nil {
		class := backend.ClassOf(err)
		c.emit(Event{Type: EventTurnFailed, AgentID: q.TargetAgentID, Reason: string(class)})
		return
	}

	answer := discussion.Turn{SpeakerID: q.TargetAgentID, Content: text}
	answerID := c.ctx.Append(answer)
	answer.TurnID = answerID
	c.persist(answer)
	c.emit(Event{Type: EventTurnCompleted, AgentID: q.TargetAgentID, Turn: &answer})
}
