package taskgraph

import "github.com/dshills/ccguard/gates"

// NodeState is the lifecycle state of a single node within one execute() run.
type NodeState string

const (
	StatePending NodeState = "pending"
	StateRunning NodeState = "running"
	StateDone    NodeState = "done"
	StateBlocked NodeState = "blocked"
	StateSkipped NodeState = "skipped"
	StateFailed  NodeState = "failed"
)

// NodeExecutionState tracks one node's progress through a single execute()
// call. It is never persisted: it lives only inside the run that created it.
type NodeExecutionState struct {
	State      NodeState
	Result     *WorkflowNodeResult
	RetryCount int
}

// WorkflowNodeResult is the outcome of running one node.
type WorkflowNodeResult struct {
	Status        NodeState               `json:"status"`
	Output        any                     `json:"output,omitempty"`
	GateResult    *gates.GateEvaluationResult `json:"gateResult,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
	NextToolCalls []gates.NextToolCall    `json:"nextToolCalls,omitempty"`
}

// ExecutionContext is the mutable, shallow-copied run context threaded
// through a single execute() call. Decision outputs are written into Results
// keyed by node id so downstream edge conditions can read them.
type ExecutionContext struct {
	TaskID  string         `json:"taskId,omitempty"`
	Tags    []string       `json:"tags,omitempty"`
	Values  map[string]any `json:"values,omitempty"`
	Results map[string]any `json:"results,omitempty"`
}

// clone returns a shallow copy of ctx suitable as the mutable per-run
// context (see spec §4.4 "shallow copy of the input context").
func (ctx ExecutionContext) clone() ExecutionContext {
	out := ExecutionContext{TaskID: ctx.TaskID, Tags: ctx.Tags}
	out.Values = make(map[string]any, len(ctx.Values))
	for k, v := range ctx.Values {
		out.Values[k] = v
	}
	out.Results = make(map[string]any, len(ctx.Results))
	for k, v := range ctx.Results {
		out.Results[k] = v
	}
	return out
}

// recordOutput stores a decision/task node's output both under
// "node_<id>" in Values and under the node's own key in Results, per the
// decision-output-storage rule.
func (ctx *ExecutionContext) recordOutput(nodeID string, output any) {
	if ctx.Values == nil {
		ctx.Values = map[string]any{}
	}
	if ctx.Results == nil {
		ctx.Results = map[string]any{}
	}
	ctx.Values["node_"+nodeID] = output
	ctx.Results[nodeID] = output
}

// WorkflowExecutionSummary is returned by Executor.Execute when the
// scheduling loop ends.
type WorkflowExecutionSummary struct {
	Status         string   `json:"status"` // completed | blocked | failed
	CompletedNodes []string `json:"completedNodes"`
	BlockedNodes   []string `json:"blockedNodes"`
	SkippedNodes   []string `json:"skippedNodes"`
	FailedNodes    []string `json:"failedNodes"`
	DurationMs     int64    `json:"durationMs"`
}
