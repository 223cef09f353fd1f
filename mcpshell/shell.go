// Package mcpshell is a minimal MCP-style tool-dispatch shell: it turns the
// nextToolCalls a completion gate evaluation produces into invocations
// against a registry of named tool handlers, in priority order.
package mcpshell

import (
	"context"
	"fmt"
	"sort"

	"github.com/dshills/ccguard/gates"
)

// Tool is a named handler invocable by tool name and argument map, mirroring
// the shape an MCP client expects from a tool call.
type Tool interface {
	Name() string
	Call(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ToolFunc adapts a plain function to the Tool interface.
type ToolFunc struct {
	ToolName string
	Fn       func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (f ToolFunc) Name() string { return f.ToolName }

func (f ToolFunc) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	return f.Fn(ctx, args)
}

// Shell dispatches NextToolCall entries to registered tools.
type Shell struct {
	tools map[string]Tool
}

// New creates an empty Shell.
func New() *Shell {
	return &Shell{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any tool previously registered under the
// same name.
func (s *Shell) Register(tool Tool) {
	s.tools[tool.Name()] = tool
}

// CallResult is the outcome of dispatching a single NextToolCall.
type CallResult struct {
	Call   gates.NextToolCall
	Output map[string]any
	Err    error
}

// Dispatch invokes each call in calls in priority order (lower runs first,
// ties broken by input order) and returns one CallResult per call. A call
// naming an unregistered tool yields an error result rather than aborting
// the batch.
func (s *Shell) Dispatch(ctx context.Context, calls []gates.NextToolCall) []CallResult {
	ordered := make([]gates.NextToolCall, len(calls))
	copy(ordered, calls)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	results := make([]CallResult, 0, len(ordered))
	for _, call := range ordered {
		tool, ok := s.tools[call.Tool]
		if !ok {
			results = append(results, CallResult{Call: call, Err: fmt.Errorf("mcpshell: no tool registered for %q", call.Tool)})
			continue
		}
		output, err := tool.Call(ctx, call.Args)
		results = append(results, CallResult{Call: call, Output: output, Err: err})
	}
	return results
}
