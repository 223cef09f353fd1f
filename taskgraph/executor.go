package taskgraph

import (
	"context"
	"time"

	"github.com/dshills/ccguard/eventbus"
	"github.com/dshills/ccguard/gates"
	"github.com/dshills/ccguard/gates/condition"
)

// RunnerOutput is what a Task Runner returns for one node invocation.
type RunnerOutput struct {
	Output any
	Err    error
}

// TaskRunner is the injected collaborator that performs the actual work of a
// task or join node. The executor treats its return value opaquely beyond
// checking Err.
type TaskRunner interface {
	Run(ctx context.Context, node Node, execCtx ExecutionContext) RunnerOutput
}

// TaskRunnerFunc adapts a plain function to TaskRunner.
type TaskRunnerFunc func(ctx context.Context, node Node, execCtx ExecutionContext) RunnerOutput

func (f TaskRunnerFunc) Run(ctx context.Context, node Node, execCtx ExecutionContext) RunnerOutput {
	return f(ctx, node, execCtx)
}

// EvidenceProvider supplies the evidence state the gate engine evaluates
// before letting a task node transition to done.
type EvidenceProvider interface {
	GetEvidenceState(ctx context.Context, node Node, execCtx ExecutionContext) (gates.EvidenceState, error)
}

// DecisionFunc produces a decision node's output from its payload. The
// output is exposed to outgoing edge conditions as the CEL variable
// "output".
type DecisionFunc func(node Node, execCtx ExecutionContext) any

// Options overrides executor-wide defaults for a single Execute call.
type Options struct {
	BypassGates      *bool
	ConcurrencyLimit *int
}

// Executor runs WorkflowGraphs. Zero-value fields fall back to a
// concurrency limit of 1 and gates not bypassed, matching the documented
// collaborator defaults.
type Executor struct {
	Bus              *eventbus.Bus
	GateEngine       *gates.Engine
	Runner           TaskRunner
	Evidence         EvidenceProvider
	Decide           DecisionFunc
	ConcurrencyLimit int
	BypassGates      bool
}

type nodeCompletion struct {
	nodeID string
	result WorkflowNodeResult
}

// Execute validates graph, then runs the bounded-concurrency scheduling
// loop described in spec §4.4 to completion, returning a summary. Graph
// validation failures are returned as *ValidationError and no node ever
// starts running.
func (ex *Executor) Execute(ctx context.Context, graph WorkflowGraph, execCtx ExecutionContext, opts Options) (WorkflowExecutionSummary, error) {
	if err := graph.Validate(); err != nil {
		return WorkflowExecutionSummary{}, err
	}

	start := time.Now()
	nodes := graph.nodeByID()
	forward, indegree := graph.adjacencyAndIndegree()
	reverse := graph.incoming()
	unchosen := make(map[string]map[string]bool)

	states := make(map[string]*NodeExecutionState, len(nodes))
	for id := range nodes {
		states[id] = &NodeExecutionState{State: StatePending}
	}

	runCtx := execCtx.clone()

	limit := ex.effectiveConcurrencyLimit(opts)
	bypass := ex.effectiveBypassGates(opts)

	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}

	running := map[string]bool{}
	completions := make(chan nodeCompletion)

	for len(ready) > 0 || len(running) > 0 {
		for len(running) < limit && len(ready) > 0 {
			id := ready[0]
			ready = ready[1:]

			if states[id].State != StatePending {
				continue
			}
			states[id].State = StateRunning
			running[id] = true
			ex.emit(eventbus.EventNodeStarted, id, nil)

			node := nodes[id]
			go ex.runNode(ctx, node, runCtx, bypass, graph.Defaults.RequireGate, completions)
		}

		if len(running) == 0 {
			break
		}

		done := <-completions
		delete(running, done.nodeID)
		states[done.nodeID].State = done.result.Status
		states[done.nodeID].Result = &done.result

		node := nodes[done.nodeID]
		ex.emitTerminal(done.nodeID, done.result)

		if done.result.Output != nil {
			runCtx.recordOutput(done.nodeID, done.result.Output)
		}

		switch {
		case node.Kind == NodeDecision && done.result.Status == StateDone:
			ex.resolveDecisionEdges(node, done.result.Output, forward[done.nodeID], unchosen)
			for _, e := range forward[done.nodeID] {
				ex.settleEdge(e.To, indegree, states, forward, reverse, unchosen, &ready)
			}
		case done.result.Status == StateDone:
			for _, e := range forward[done.nodeID] {
				ex.settleEdge(e.To, indegree, states, forward, reverse, unchosen, &ready)
			}
		case done.result.Status == StateFailed:
			switch node.effectiveOnError() {
			case OnErrorSkip, OnErrorContinue:
				for _, e := range forward[done.nodeID] {
					ex.settleEdge(e.To, indegree, states, forward, reverse, unchosen, &ready)
				}
			case OnErrorFail:
				// Successors are not decremented: the failed branch is stuck
				// unless reachable by another path.
			}
		case done.result.Status == StateBlocked:
			// Successors are not decremented; the caller must remediate via
			// nextToolCalls and re-run.
		}
	}

	return ex.summarize(graph, states, start), nil
}

func (ex *Executor) effectiveConcurrencyLimit(opts Options) int {
	if opts.ConcurrencyLimit != nil {
		return *opts.ConcurrencyLimit
	}
	if ex.ConcurrencyLimit > 0 {
		return ex.ConcurrencyLimit
	}
	return 1
}

func (ex *Executor) effectiveBypassGates(opts Options) bool {
	if opts.BypassGates != nil {
		return *opts.BypassGates
	}
	return ex.BypassGates
}

// runNode executes a single node and sends its completion back to the
// scheduler goroutine. It never mutates scheduler-owned maps directly.
func (ex *Executor) runNode(ctx context.Context, node Node, runCtx ExecutionContext, bypass, graphDefaultRequireGate bool, out chan<- nodeCompletion) {
	switch node.Kind {
	case NodeDecision:
		var output any
		if ex.Decide != nil {
			output = ex.Decide(node, runCtx)
		} else {
			output = node.Payload
		}
		out <- nodeCompletion{nodeID: node.ID, result: WorkflowNodeResult{Status: StateDone, Output: output}}
	default:
		out <- nodeCompletion{nodeID: node.ID, result: ex.runTaskOrJoin(ctx, node, runCtx, bypass, graphDefaultRequireGate)}
	}
}

func (ex *Executor) runTaskOrJoin(ctx context.Context, node Node, runCtx ExecutionContext, bypass, graphDefaultRequireGate bool) WorkflowNodeResult {
	var runnerOut RunnerOutput
	if ex.Runner != nil {
		runnerOut = ex.Runner.Run(ctx, node, runCtx)
	}
	if runnerOut.Err != nil {
		return WorkflowNodeResult{Status: StateFailed, Reason: runnerOut.Err.Error()}
	}

	requiresGate := node.RequiresGate(graphDefaultRequireGate)
	if !requiresGate || ex.GateEngine == nil {
		return WorkflowNodeResult{Status: StateDone, Output: runnerOut.Output}
	}
	if bypass {
		ex.emit(eventbus.EventNodeBypassGates, node.ID, nil)
		return WorkflowNodeResult{Status: StateDone, Output: runnerOut.Output}
	}

	evidence := gates.EvidenceState{}
	if ex.Evidence != nil {
		if ev, err := ex.Evidence.GetEvidenceState(ctx, node, runCtx); err == nil {
			evidence = ev
		}
	}
	gateResult := ex.GateEngine.EvaluateCompletionGates(evidence, gates.Context{TaskID: runCtx.TaskID, Tags: runCtx.Tags})
	if gateResult.Status != gates.GateStatusPassed {
		return WorkflowNodeResult{
			Status:        StateBlocked,
			Output:        runnerOut.Output,
			GateResult:    &gateResult,
			NextToolCalls: gateResult.NextToolCalls,
		}
	}
	return WorkflowNodeResult{Status: StateDone, Output: runnerOut.Output, GateResult: &gateResult}
}

// resolveDecisionEdges evaluates each outgoing edge's condition against a
// decision node's output and records which targets are unchosen.
func (ex *Executor) resolveDecisionEdges(node Node, output any, edges []Edge, unchosen map[string]map[string]bool) {
	unchosen[node.ID] = map[string]bool{}
	for _, e := range edges {
		if e.Condition == "" {
			continue
		}
		program, err := condition.Compile(e.Condition)
		if err != nil {
			// A condition that fails to compile is treated conservatively
			// as not chosen so the scheduler never stalls.
			unchosen[node.ID][e.To] = true
			continue
		}
		chosen, err := program.Evaluate(output)
		if err != nil || !chosen {
			unchosen[node.ID][e.To] = true
		}
	}
}

// settleEdge decrements target's in-degree for one incoming edge that just
// fired (whether by a chosen path, an unchosen decision branch, or an
// onError pass-through). Once the in-degree reaches zero, target is either
// skipped or made ready:
//
// target is skipped when every one of its predecessors is "non-contributing"
// — already Skipped, or reached only via an unchosen decision edge — which
// is exactly the "exclusive descendant" condition in spec §4.4. If any
// predecessor is a live, settled node (done/failed-passthrough), target is
// scheduled normally instead. Skipping recurses into target's own
// successors so the skip chain and join readiness propagate together.
func (ex *Executor) settleEdge(target string, indegree map[string]int, states map[string]*NodeExecutionState, forward map[string][]Edge, reverse map[string][]string, unchosen map[string]map[string]bool, ready *[]string) {
	indegree[target]--
	if indegree[target] > 0 {
		return
	}
	if states[target].State != StatePending {
		return
	}

	skippable := true
	for _, src := range reverse[target] {
		if unchosen[src][target] {
			continue
		}
		if states[src].State == StateSkipped {
			continue
		}
		skippable = false
		break
	}

	if !skippable {
		*ready = append(*ready, target)
		return
	}

	states[target].State = StateSkipped
	ex.emit(eventbus.EventNodeSkipped, target, nil)

	for _, e := range forward[target] {
		ex.settleEdge(e.To, indegree, states, forward, reverse, unchosen, ready)
	}
}

func (ex *Executor) emit(eventType eventbus.EventType, nodeID string, extra map[string]any) {
	if ex.Bus == nil {
		return
	}
	data := map[string]any{"nodeId": nodeID}
	for k, v := range extra {
		data[k] = v
	}
	ex.Bus.Emit(eventbus.Event{Type: eventType, Data: data, Source: "taskgraph-executor"})
}

func (ex *Executor) emitTerminal(nodeID string, result WorkflowNodeResult) {
	switch result.Status {
	case StateDone:
		ex.emit(eventbus.EventNodeCompleted, nodeID, map[string]any{"output": result.Output})
	case StateBlocked:
		data := map[string]any{"reason": result.Reason}
		if result.GateResult != nil {
			data["gateStatus"] = result.GateResult.Status
			data["missingEvidence"] = result.GateResult.MissingEvidence
		}
		data["nextToolCalls"] = result.NextToolCalls
		ex.emit(eventbus.EventNodeGated, nodeID, data)
	case StateFailed:
		ex.emit(eventbus.EventNodeFailed, nodeID, map[string]any{"reason": result.Reason})
	}
}

func (ex *Executor) summarize(graph WorkflowGraph, states map[string]*NodeExecutionState, start time.Time) WorkflowExecutionSummary {
	summary := WorkflowExecutionSummary{DurationMs: time.Since(start).Milliseconds()}
	for _, n := range graph.Nodes {
		switch states[n.ID].State {
		case StateDone:
			summary.CompletedNodes = append(summary.CompletedNodes, n.ID)
		case StateBlocked:
			summary.BlockedNodes = append(summary.BlockedNodes, n.ID)
		case StateSkipped:
			summary.SkippedNodes = append(summary.SkippedNodes, n.ID)
		case StateFailed:
			summary.FailedNodes = append(summary.FailedNodes, n.ID)
		}
	}

	switch {
	case len(summary.BlockedNodes) > 0:
		summary.Status = "blocked"
	case len(summary.FailedNodes) > 0:
		summary.Status = "failed"
	default:
		summary.Status = "completed"
	}

	if ex.Bus != nil {
		ex.Bus.Emit(eventbus.Event{
			Type: eventbus.EventWorkflowCompleted,
			Data: map[string]any{
				"completed":  len(summary.CompletedNodes),
				"blocked":    len(summary.BlockedNodes),
				"skipped":    len(summary.SkippedNodes),
				"failed":     len(summary.FailedNodes),
				"durationMs": summary.DurationMs,
			},
			Source: "taskgraph-executor",
		})
	}

	return summary
}
