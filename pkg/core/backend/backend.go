// Package backend wraps an llm.Provider into the Think contract every
// discussion-engine component calls against: a single retrying, timed,
// context-cancelable call that never returns a raw provider error, only one
// of the closed ErrorClass taxonomy values.
package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/core/llm"
	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
)

// ErrorClass is the closed taxonomy every backend failure is mapped into
// (spec.md §4.1). Controllers branch on this, never on provider-specific
// error strings.
type ErrorClass string

const (
	ErrTransient     ErrorClass = "transient"
	ErrPermanent     ErrorClass = "permanent"
	ErrTimeout       ErrorClass = "timeout"
	ErrCanceled      ErrorClass = "canceled"
	ErrPolicyBlocked ErrorClass = "policy_blocked"
)

// ThinkError is the single error type Think ever returns. Class is always
// one of the ErrorClass constants above.
type ThinkError struct {
	Class ErrorClass
	Err   error
}

func (e *ThinkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ThinkError) Unwrap() error { return e.Err }

// ClassOf extracts the ErrorClass from an error produced by Think, falling
// back to ErrTransient for anything that didn't come through this package
// (conservative default: retry rather than give up).
func ClassOf(err error) ErrorClass {
	var te *ThinkError
	if errors.As(err, &te) {
		return te.Class
	}
	return ErrTransient
}

// Usage reports token accounting for a single Think call when the provider
// exposes it. Providers that don't report usage leave this zeroed.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// HistoryEntry is the minimal speaker/content pair a backend needs to build
// a prompt; it is backend's own view so this package has no dependency on
// pkg/core/discussion.
type HistoryEntry struct {
	SpeakerID string
	Content   string
}

// Config bounds a single Think call's retry/timeout behavior (spec.md §5).
type Config struct {
	ThinkTimeout time.Duration
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
}

// DefaultConfig matches spec.md §5's defaults.
func DefaultConfig() Config {
	return Config{
		ThinkTimeout: 30 * time.Second,
		MaxRetries:   2,
		BackoffBase:  250 * time.Millisecond,
		BackoffCap:   2 * time.Second,
	}
}

// Backend adapts one roomspec.AgentSpec's configured platform into the
// Think contract.
type Backend struct {
	spec     roomspec.AgentSpec
	provider llm.Provider
	cfg      Config
}

// New builds a Backend for spec, resolving spec.Backend to a concrete
// llm.Provider via Resolve.
func New(spec roomspec.AgentSpec, cfg Config) *Backend {
	return &Backend{spec: spec, provider: Resolve(spec.Backend, spec.ModelParams), cfg: cfg}
}

// NewWithProvider lets callers (tests, substitution logic) inject a
// specific provider instead of resolving one from spec.Backend.
func NewWithProvider(spec roomspec.AgentSpec, provider llm.Provider, cfg Config) *Backend {
	return &Backend{spec: spec, provider: provider, cfg: cfg}
}

// Think sends prompt plus a rendered history window to the underlying
// provider, retrying transient failures up to cfg.MaxRetries times with
// exponential backoff, and enforcing cfg.ThinkTimeout on every attempt.
func (b *Backend) Think(ctx context.Context, prompt string, history []HistoryEntry) (string, Usage, error) {
	rendered := renderHistory(history) + prompt

	options := map[string]interface{}{}
	if b.spec.ModelParams.Model != "" {
		options["model"] = b.spec.ModelParams.Model
	}
	if b.spec.ModelParams.Temperature != 0 {
		options["temperature"] = b.spec.ModelParams.Temperature
	}
	if b.spec.ModelParams.MaxTokens != 0 {
		options["max_tokens"] = b.spec.ModelParams.MaxTokens
	}

	var lastErr error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", Usage{}, &ThinkError{Class: ErrCanceled, Err: ctx.Err()}
		}

		callCtx, cancel := context.WithTimeout(ctx, b.cfg.ThinkTimeout)
		text, err := b.provider.GenerateResponse(callCtx, rendered, b.spec.SystemPrompt, options)
		cancel()

		if err == nil && strings.TrimSpace(text) != "" {
			return text, Usage{}, nil
		}

		var classified ErrorClass
		if err == nil {
			err = fmt.Errorf("empty response")
			classified = ErrTransient
		} else {
			classified = classify(err, callCtx)
		}
		lastErr = &ThinkError{Class: classified, Err: err}

		if classified != ErrTransient || attempt == b.cfg.MaxRetries {
			return "", Usage{}, lastErr
		}

		delay := backoffDelay(b.cfg.BackoffBase, b.cfg.BackoffCap, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", Usage{}, &ThinkError{Class: ErrCanceled, Err: ctx.Err()}
		}
	}

	return "", Usage{}, lastErr
}

func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > max {
		d = max
	}
	return d
}

func classify(err error, callCtx context.Context) ErrorClass {
	if callCtx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrCanceled
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "policy") || strings.Contains(msg, "blocked") || strings.Contains(msg, "safety"):
		return ErrPolicyBlocked
	case strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid request") || strings.Contains(msg, "400"):
		return ErrPermanent
	default:
		return ErrTransient
	}
}

func renderHistory(history []HistoryEntry) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for _, h := range history {
		b.WriteString(h.SpeakerID)
		b.WriteString(": ")
		b.WriteString(h.Content)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
