package llmreview

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/ccguard/taskgraph"
)

// Runner implements taskgraph.TaskRunner by asking a Provider to draft a
// remediation suggestion for a node, using the node's label, phase, and
// payload as context. Its RunnerOutput.Output is the suggestion text;
// nothing in this package copies it into a NextToolCall.
type Runner struct {
	Provider Provider
}

// NewRunner wraps provider in a taskgraph.TaskRunner.
func NewRunner(provider Provider) *Runner {
	return &Runner{Provider: provider}
}

func (r *Runner) Run(ctx context.Context, node taskgraph.Node, execCtx taskgraph.ExecutionContext) taskgraph.RunnerOutput {
	suggestion, err := r.Provider.Complete(ctx, buildPrompt(node, execCtx))
	if err != nil {
		return taskgraph.RunnerOutput{Err: fmt.Errorf("llmreview: %w", err)}
	}
	return taskgraph.RunnerOutput{Output: suggestion}
}

func buildPrompt(node taskgraph.Node, execCtx taskgraph.ExecutionContext) string {
	var b strings.Builder
	b.WriteString("A task node in an automated workflow needs a short remediation suggestion.\n")
	fmt.Fprintf(&b, "Node: %s (phase: %s)\n", orUnlabeled(node.Label, node.ID), orUnlabeled(node.Phase, "unspecified"))
	if len(node.Payload) > 0 {
		fmt.Fprintf(&b, "Payload: %v\n", node.Payload)
	}
	if len(execCtx.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(execCtx.Tags, ", "))
	}
	b.WriteString("Respond with one concise sentence describing the next concrete action to take.")
	return b.String()
}

func orUnlabeled(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
