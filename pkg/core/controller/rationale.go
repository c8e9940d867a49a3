package controller

import (
	"regexp"
	"strings"

	"github.com/discussion-engine/orchestrator/pkg/core/discussion"
	"github.com/discussion-engine/orchestrator/pkg/core/utils"
)

// rationaleFence matches a trailing ```json ... ``` (or bare ```) block an
// agent may append to its reply to explain a redirect-to-user suggestion.
var rationaleFence = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```\\s*$")

// extractRedirectRationale looks for a trailing fenced JSON block in
// content and parses it leniently via utils.SmartParse, since replies from
// a text-completion backend routinely arrive with single quotes, trailing
// commas, or missing brackets rather than strict JSON (the same failure
// mode SmartParse was built to absorb for the teacher's report synthesis
// stage). Returns nil if no such block is present or it can't be parsed
// under any of SmartParse's strategies.
func extractRedirectRationale(content string) *discussion.RedirectRationale {
	match := rationaleFence.FindStringSubmatch(content)
	if match == nil {
		return nil
	}

	var rationale discussion.RedirectRationale
	if _, err := utils.SmartParse(strings.TrimSpace(match[1]), &rationale); err != nil {
		return nil
	}
	if rationale.Reason == "" && rationale.Question == "" {
		return nil
	}
	return &rationale
}
