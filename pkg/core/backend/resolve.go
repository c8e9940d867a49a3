package backend

import (
	"context"
	"fmt"

	"github.com/discussion-engine/orchestrator/pkg/core/llm"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
)

// Resolve maps a roomspec.Platform to the llm.Provider that speaks for it.
// Unknown platforms fall back to MockProvider rather than panicking, so a
// misconfigured room degrades to a mock agent instead of crashing the
// process.
func Resolve(platform roomspec.Platform, params roomspec.ModelParams) llm.Provider {
	switch platform {
	case roomspec.PlatformGemini:
		return &llm.GeminiProvider{Model: params.Model}
	case roomspec.PlatformDeepSeek:
		return &llm.DeepSeekProvider{}
	case roomspec.PlatformQwen:
		return &llm.QwenProvider{}
	default:
		return &MockProvider{}
	}
}

// MockProvider is a deterministic, API-key-free Provider used by tests,
// simulations, and as the safe default for roomspec.PlatformMock. It never
// makes a network call.
type MockProvider struct {
	// Fixed, when set, is returned verbatim instead of the echoed prompt.
	Fixed string
	// Err, when set, is returned on every call (for failure-path tests).
	Err error
}

var _ llm.Provider = (*MockProvider)(nil)

func (p *MockProvider) GenerateResponse(ctx context.Context, prompt, systemPrompt string, options map[string]interface{}) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if p.Fixed != "" {
		return p.Fixed, nil
	}
	return fmt.Sprintf("[mock response to: %.60s]", prompt), nil
}

func (p *MockProvider) AdaptInstructions(raw string) string {
	return raw
}
