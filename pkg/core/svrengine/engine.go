// Package svrengine fans SVR computation out across a room's participants
// in parallel, bounding total wall-clock by a single deadline regardless of
// how many participants are in the room (spec.md §4.4).
package svrengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
	"github.com/discussion-engine/orchestrator/pkg/core/svr"
)

// ErrTimeout is the sentinel wrapped into a Tuple.Err when a participant's
// computation did not finish before the deadline.
var ErrTimeout = fmt.Errorf("svr computation timed out")

// Engine computes one svr.Tuple per participant, concurrently, within a
// fixed deadline. The wrapped Computer carries one room's svr.History, so
// each Controller builds its own Engine.
type Engine struct {
	computer *svr.Computer
	deadline time.Duration
}

// DefaultDeadline matches spec.md §5's svrDeadline default.
const DefaultDeadline = 1500 * time.Millisecond

// New builds an Engine around computer, bounding each Compute call to
// deadline (use DefaultDeadline when unset).
func New(computer *svr.Computer, deadline time.Duration) *Engine {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Engine{computer: computer, deadline: deadline}
}

// Compute returns exactly len(view.Participants) tuples, in participant
// order, regardless of individual task failures (spec.md §8 invariant 5).
func (e *Engine) Compute(ctx context.Context, view discussion.ContextView) []svr.Tuple {
	participants := view.Participants
	results := make([]svr.Tuple, len(participants))

	deadlineCtx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	var wg sync.WaitGroup
	for i, agent := range participants {
		wg.Add(1)
		go e.computeOne(deadlineCtx, &wg, agent, view, results, i)
	}
	wg.Wait()

	return results
}

func (e *Engine) computeOne(ctx context.Context, wg *sync.WaitGroup, agent roomspec.AgentSpec, view discussion.ContextView, results []svr.Tuple, index int) {
	defer wg.Done()

	done := make(chan svr.Tuple, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- svr.Tuple{AgentID: agent.AgentID, Err: fmt.Errorf("svr computation panicked: %v", r)}
			}
		}()
		done <- e.computer.Compute(agent, view)
	}()

	select {
	case tuple := <-done:
		results[index] = tuple
	case <-ctx.Done():
		results[index] = svr.Tuple{AgentID: agent.AgentID, Err: ErrTimeout}
	}
}
