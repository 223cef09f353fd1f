// Package taskgraph implements the DAG Workflow Executor: it topologically
// schedules a directed acyclic graph of task/decision/join nodes with a
// bounded concurrency limit, decision-branch pruning, and per-node gate
// evaluation, publishing lifecycle events to an eventbus.Bus as it goes.
package taskgraph

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// structValidator runs the struct-tag validation pass ahead of the DAG
// shape checks in Validate. A single instance is reused, matching the
// package's own recommended usage (it caches struct metadata internally).
var structValidator = validator.New()

// NodeKind discriminates how a Node is executed by the scheduler.
type NodeKind string

const (
	NodeTask     NodeKind = "task"
	NodeDecision NodeKind = "decision"
	NodeJoin     NodeKind = "join"
)

// OnError controls successor scheduling after a task node's runner returns
// an error.
type OnError string

const (
	OnErrorFail     OnError = "fail"
	OnErrorSkip     OnError = "skip"
	OnErrorContinue OnError = "continue"
)

// Node is one vertex of a WorkflowGraph.
type Node struct {
	ID         string         `json:"id" validate:"required"`
	Kind       NodeKind       `json:"kind" validate:"required,oneof=task decision join"`
	Label      string         `json:"label,omitempty"`
	Phase      string         `json:"phase,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	GatePolicy *bool          `json:"gatePolicy,omitempty"`
	OnError    OnError        `json:"onError,omitempty" validate:"omitempty,oneof=fail skip continue"`
}

// RequiresGate resolves this node's effective gate requirement, falling
// back to the graph-wide default when the node does not override it.
func (n Node) RequiresGate(graphDefault bool) bool {
	if n.GatePolicy != nil {
		return *n.GatePolicy
	}
	return graphDefault
}

// effectiveOnError defaults to "fail" when unset.
func (n Node) effectiveOnError() OnError {
	if n.OnError == "" {
		return OnErrorFail
	}
	return n.OnError
}

// Edge is a directed dependency between two nodes. Condition, when present,
// is a CEL expression evaluated against the source decision node's output;
// edges without a Condition are unconditional.
type Edge struct {
	From      string `json:"from" validate:"required"`
	To        string `json:"to" validate:"required"`
	Condition string `json:"condition,omitempty"`
}

// Defaults carries graph-wide fallbacks applied when a node does not
// override them.
type Defaults struct {
	RequireGate bool `json:"requireGate,omitempty"`
}

// WorkflowGraph is the DAG the executor runs. Entry must name a node id;
// every edge endpoint must name a node id; the graph must be acyclic.
type WorkflowGraph struct {
	Entry    string   `json:"entry" validate:"required"`
	Nodes    []Node   `json:"nodes" validate:"required,min=1,dive"`
	Edges    []Edge   `json:"edges" validate:"dive"`
	Defaults Defaults `json:"defaults,omitempty"`
}

// ValidationError classifies why a graph failed validation.
type ValidationError struct {
	Category string // "struct" | "unknown-entry" | "dangling-edge" | "cycle"
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("taskgraph: %s: %s", e.Category, e.Message)
}

func newValidationError(category, message string) *ValidationError {
	return &ValidationError{Category: category, Message: message}
}

// nodeByID indexes Nodes by id for O(1) lookup during validation and
// execution.
func (g *WorkflowGraph) nodeByID() map[string]Node {
	index := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		index[n.ID] = n
	}
	return index
}

// Validate runs a struct-tag validation pass (required fields, node kind
// and onError enums), then checks entry existence, edge endpoint
// existence, and acyclicity before any execution begins.
func (g *WorkflowGraph) Validate() error {
	if err := structValidator.Struct(g); err != nil {
		return newValidationError("struct", err.Error())
	}

	nodes := g.nodeByID()

	if _, ok := nodes[g.Entry]; !ok {
		return newValidationError("unknown-entry", fmt.Sprintf("entry node %q does not exist", g.Entry))
	}

	adjacency := make(map[string][]string, len(nodes))
	for _, e := range g.Edges {
		if _, ok := nodes[e.From]; !ok {
			return newValidationError("dangling-edge", fmt.Sprintf("edge references unknown node %q", e.From))
		}
		if _, ok := nodes[e.To]; !ok {
			return newValidationError("dangling-edge", fmt.Sprintf("edge references unknown node %q", e.To))
		}
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	visited := make(map[string]bool, len(nodes))
	onStack := make(map[string]bool, len(nodes))

	var visit func(id string) error
	visit = func(id string) error {
		visited[id] = true
		onStack[id] = true
		for _, next := range adjacency[id] {
			if onStack[next] {
				return newValidationError("cycle", fmt.Sprintf("cycle detected at node %q", next))
			}
			if !visited[next] {
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		onStack[id] = false
		return nil
	}

	for id := range nodes {
		if !visited[id] {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// adjacencyAndIndegree builds forward adjacency and in-degree counts for the
// pre-execution setup step. Validate must have already succeeded.
func (g *WorkflowGraph) adjacencyAndIndegree() (forward map[string][]Edge, indegree map[string]int) {
	forward = make(map[string][]Edge, len(g.Nodes))
	indegree = make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		forward[e.From] = append(forward[e.From], e)
		indegree[e.To]++
	}
	return forward, indegree
}

// incoming builds the reverse adjacency (predecessor list) per node, used by
// settleEdge to decide whether a node whose incoming edges are all settled
// is skipped.
func (g *WorkflowGraph) incoming() map[string][]string {
	reverse := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		reverse[e.To] = append(reverse[e.To], e.From)
	}
	return reverse
}
