package llmreview

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/ccguard/taskgraph"
)

type fakeProvider struct {
	response string
	err      error
	lastPrompt string
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.response, f.err
}

func TestRunnerReturnsProviderSuggestion(t *testing.T) {
	provider := &fakeProvider{response: "re-run the guard check with the updated config"}
	runner := NewRunner(provider)

	node := taskgraph.Node{ID: "n1", Label: "apply config", Phase: "backend"}
	out := runner.Run(context.Background(), node, taskgraph.ExecutionContext{Tags: []string{"backend"}})

	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Output != "re-run the guard check with the updated config" {
		t.Fatalf("unexpected output: %v", out.Output)
	}
	if !strings.Contains(provider.lastPrompt, "apply config") {
		t.Fatalf("expected prompt to mention node label, got %q", provider.lastPrompt)
	}
	if !strings.Contains(provider.lastPrompt, "backend") {
		t.Fatalf("expected prompt to mention tags/phase, got %q", provider.lastPrompt)
	}
}

func TestRunnerWrapsProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("rate limited")}
	runner := NewRunner(provider)

	out := runner.Run(context.Background(), taskgraph.Node{ID: "n1"}, taskgraph.ExecutionContext{})
	if out.Err == nil || !strings.Contains(out.Err.Error(), "rate limited") {
		t.Fatalf("expected wrapped provider error, got %v", out.Err)
	}
}

func TestBuildPromptFallsBackToNodeID(t *testing.T) {
	prompt := buildPrompt(taskgraph.Node{ID: "n1"}, taskgraph.ExecutionContext{})
	if !strings.Contains(prompt, "n1") {
		t.Fatalf("expected prompt to fall back to node id, got %q", prompt)
	}
}
