package controller

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
	"github.com/discussion-engine/orchestrator/pkg/core/utils"
)

// summaryFence matches a fenced JSON block anywhere in a reply, leniently,
// the same shape the teacher's generateFinalReport strips before parsing.
var summaryFence = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Summarize produces a Summary from the room's full transcript, reusing the
// teacher's two-call generateFinalReport pattern: a Markdown executive
// summary call, then a structured-extraction call whose JSON is parsed with
// utils.SmartParse. There is no dedicated synthesizer role in this engine's
// roster (SPEC_FULL.md §10), so the lowest AgentID participant's backend
// stands in. Intended to be called once a Controller has reached Stopped.
func (c *Controller) Summarize(ctx context.Context) (*discussion.Summary, error) {
	view := c.ctx.Snapshot()
	if len(view.Turns) == 0 {
		return nil, fmt.Errorf("nothing to summarize: room has no turns")
	}

	synthesizerID := lowestAgentID(view.Participants)
	if synthesizerID == "" {
		return nil, fmt.Errorf("no participants to synthesize from")
	}
	b, ok := c.backends[synthesizerID]
	if !ok {
		return nil, fmt.Errorf("no backend for synthesizer %q", synthesizerID)
	}

	transcript := formatTranscript(view.Turns)

	markdownPrompt := "Write a concise executive summary in Markdown of the discussion below.\n\n" + transcript
	markdown, _, err := b.Think(ctx, markdownPrompt, nil)
	if err != nil {
		return nil, fmt.Errorf("generating executive summary: %w", err)
	}

	summary := &discussion.Summary{ExecutiveSummary: markdown, GeneratedAt: time.Now().UTC()}

	jsonPrompt := fmt.Sprintf(
		"Extract the key points and open questions from the report below as a JSON object with two arrays, \"key_points\" and \"open_questions\". Respond with only the JSON, enclosed in ```json ... ```.\n\n%s",
		markdown,
	)
	jsonReply, _, err := b.Think(ctx, jsonPrompt, nil)
	if err != nil {
		// A failed extraction call still leaves the executive summary usable.
		return summary, nil
	}

	var payload struct {
		KeyPoints     []string `json:"key_points"`
		OpenQuestions []string `json:"open_questions"`
	}
	if body := extractFencedJSON(jsonReply); body != "" {
		if _, err := utils.SmartParse(body, &payload); err == nil {
			summary.KeyPoints = payload.KeyPoints
			summary.OpenQuestions = payload.OpenQuestions
		}
	}
	return summary, nil
}

func extractFencedJSON(content string) string {
	if match := summaryFence.FindStringSubmatch(content); match != nil {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(content)
}

func lowestAgentID(participants []roomspec.AgentSpec) string {
	best := ""
	for _, p := range participants {
		if best == "" || p.AgentID < best {
			best = p.AgentID
		}
	}
	return best
}

func formatTranscript(turns []discussion.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.SpeakerID, t.Content)
	}
	return b.String()
}
