// Package llmreview is an optional Task Runner collaborator: it calls a
// configured LLM to draft a remediation suggestion for a task whose
// completion gate is blocked, returned as the node's runner output. It
// lives outside the core: gates and taskgraph never import this package or
// any of the provider SDKs it wraps.
package llmreview

import "context"

// Provider is the minimal interface this package needs from an LLM backend:
// a single-turn completion given a prompt string. Each concrete provider
// wraps its own SDK client behind this interface so Runner stays
// provider-agnostic and test doubles stay simple.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
