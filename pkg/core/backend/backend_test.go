package backend

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/discussion-engine/orchestrator/pkg/core/roomspec"
)

func testSpec() roomspec.AgentSpec {
	return roomspec.New("a1", "Alpha", "proponent", "argue for", roomspec.PlatformMock, roomspec.ModelParams{})
}

func TestThinkReturnsProviderText(t *testing.T) {
	b := NewWithProvider(testSpec(), &MockProvider{Fixed: "hello"}, DefaultConfig())

	text, _, err := b.Think(context.Background(), "prompt", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello" {
		t.Fatalf("want %q, got %q", "hello", text)
	}
}

func TestThinkClassifiesPermanentWithoutRetry(t *testing.T) {
	calls := 0
	provider := &countingProvider{err: errors.New("invalid request: bad api key"), calls: &calls}
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.BackoffBase = time.Millisecond

	b := NewWithProvider(testSpec(), provider, cfg)
	_, _, err := b.Think(context.Background(), "prompt", nil)

	if ClassOf(err) != ErrPermanent {
		t.Fatalf("want ErrPermanent, got %v", ClassOf(err))
	}
	if calls != 1 {
		t.Fatalf("want exactly 1 call for a permanent error, got %d", calls)
	}
}

func TestThinkRetriesTransientUpToMaxRetries(t *testing.T) {
	calls := 0
	provider := &countingProvider{err: errors.New("upstream overloaded"), calls: &calls}
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffCap = time.Millisecond

	b := NewWithProvider(testSpec(), provider, cfg)
	_, _, err := b.Think(context.Background(), "prompt", nil)

	if ClassOf(err) != ErrTransient {
		t.Fatalf("want ErrTransient, got %v", ClassOf(err))
	}
	if calls != cfg.MaxRetries+1 {
		t.Fatalf("want %d calls (1 + retries), got %d", cfg.MaxRetries+1, calls)
	}
}

func TestThinkCanceledContextShortCircuits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewWithProvider(testSpec(), &MockProvider{Fixed: "unreachable"}, DefaultConfig())
	_, _, err := b.Think(ctx, "prompt", nil)

	if ClassOf(err) != ErrCanceled {
		t.Fatalf("want ErrCanceled, got %v", ClassOf(err))
	}
}

func TestThinkRendersHistoryBeforePrompt(t *testing.T) {
	var seenPrompt string
	provider := &capturingProvider{onCall: func(prompt string) { seenPrompt = prompt }}

	b := NewWithProvider(testSpec(), provider, DefaultConfig())
	_, _, err := b.Think(context.Background(), "final question", []HistoryEntry{
		{SpeakerID: "a2", Content: "earlier point"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(seenPrompt, "a2: earlier point") || !strings.Contains(seenPrompt, "final question") {
		t.Fatalf("want rendered history then prompt, got %q", seenPrompt)
	}
}

type countingProvider struct {
	err   error
	calls *int
}

func (p *countingProvider) GenerateResponse(ctx context.Context, prompt, systemPrompt string, options map[string]interface{}) (string, error) {
	*p.calls++
	return "", p.err
}

func (p *countingProvider) AdaptInstructions(raw string) string { return raw }

type capturingProvider struct {
	onCall func(prompt string)
}

func (p *capturingProvider) GenerateResponse(ctx context.Context, prompt, systemPrompt string, options map[string]interface{}) (string, error) {
	p.onCall(prompt)
	return "ok", nil
}

func (p *capturingProvider) AdaptInstructions(raw string) string { return raw }
