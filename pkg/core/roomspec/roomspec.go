// Package roomspec defines the immutable agent descriptor shared by every
// room: who the participant is, what it's prompted to be, and which backend
// it speaks through.
package roomspec

// Platform identifies which LLM backend an agent is bound to.
type Platform string

const (
	PlatformGemini   Platform = "gemini"
	PlatformDeepSeek Platform = "deepseek"
	PlatformQwen     Platform = "qwen"
	PlatformMock     Platform = "mock"
)

// ModelParams carries provider-agnostic generation knobs. Providers that
// don't support a field ignore it.
type ModelParams struct {
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// AgentSpec is created when a room is created and destroyed with the room.
// It never changes after registration.
type AgentSpec struct {
	AgentID      string      `json:"agent_id"`
	DisplayName  string      `json:"display_name"`
	Role         string      `json:"role"`
	SystemPrompt string      `json:"system_prompt"`
	Backend      Platform    `json:"platform"`
	ModelParams  ModelParams `json:"model_params"`
}

// New builds an AgentSpec, defaulting Backend to PlatformMock when unset so
// tests and simulations never need a live API key.
func New(agentID, displayName, role, systemPrompt string, backend Platform, params ModelParams) AgentSpec {
	if backend == "" {
		backend = PlatformMock
	}
	return AgentSpec{
		AgentID:      agentID,
		DisplayName:  displayName,
		Role:         role,
		SystemPrompt: systemPrompt,
		Backend:      backend,
		ModelParams:  params,
	}
}
