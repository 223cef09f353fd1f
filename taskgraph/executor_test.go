package taskgraph

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dshills/ccguard/gates"
)

func TestValidateRejectsUnknownEntry(t *testing.T) {
	g := WorkflowGraph{Entry: "missing", Nodes: []Node{{ID: "A", Kind: NodeTask}}}
	err := g.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "unknown-entry") {
		t.Fatalf("expected unknown-entry category, got %v", err)
	}
}

func TestValidateRejectsDanglingEdge(t *testing.T) {
	g := WorkflowGraph{
		Entry: "A",
		Nodes: []Node{{ID: "A", Kind: NodeTask}},
		Edges: []Edge{{From: "A", To: "ghost"}},
	}
	err := g.Validate()
	if err == nil || !strings.Contains(err.Error(), "dangling-edge") {
		t.Fatalf("expected dangling-edge error, got %v", err)
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	g := WorkflowGraph{
		Entry: "A",
		Nodes: []Node{{ID: "A", Kind: NodeTask}, {ID: "B", Kind: NodeTask}},
		Edges: []Edge{{From: "A", To: "B"}, {From: "B", To: "A"}},
	}
	err := g.Validate()
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func trueTrue(Node, ExecutionContext) any { return true }

func TestDecisionBranchSkipping(t *testing.T) {
	g := WorkflowGraph{
		Entry: "A",
		Nodes: []Node{
			{ID: "A", Kind: NodeTask},
			{ID: "B", Kind: NodeDecision},
			{ID: "C", Kind: NodeTask},
			{ID: "D", Kind: NodeTask},
			{ID: "E", Kind: NodeJoin},
		},
		Edges: []Edge{
			{From: "A", To: "B"},
			{From: "B", To: "C", Condition: "output == true"},
			{From: "B", To: "D", Condition: "output == false"},
			{From: "D", To: "E"},
			{From: "C", To: "E"},
		},
	}

	ex := &Executor{
		Runner:           TaskRunnerFunc(func(ctx context.Context, node Node, execCtx ExecutionContext) RunnerOutput { return RunnerOutput{} }),
		Decide:           trueTrue,
		ConcurrencyLimit: 1,
	}

	summary, err := ex.Execute(context.Background(), g, ExecutionContext{}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Status != "completed" {
		t.Fatalf("expected completed status, got %s", summary.Status)
	}
	if !containsStr(summary.SkippedNodes, "D") {
		t.Fatalf("expected D skipped, got %v", summary.SkippedNodes)
	}
	for _, id := range []string{"A", "B", "C", "E"} {
		if !containsStr(summary.CompletedNodes, id) {
			t.Fatalf("expected %s completed, got %v", id, summary.CompletedNodes)
		}
	}
}

func TestCycleExecuteFails(t *testing.T) {
	g := WorkflowGraph{
		Entry: "A",
		Nodes: []Node{{ID: "A", Kind: NodeTask}, {ID: "B", Kind: NodeTask}},
		Edges: []Edge{{From: "A", To: "B"}, {From: "B", To: "A"}},
	}
	ex := &Executor{}
	_, err := ex.Execute(context.Background(), g, ExecutionContext{}, Options{})
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error from Execute, got %v", err)
	}
}

func TestConcurrencyLimitHonored(t *testing.T) {
	nodes := []Node{{ID: "entry", Kind: NodeTask}}
	for i := 0; i < 6; i++ {
		nodes = append(nodes, Node{ID: "n" + string(rune('A'+i)), Kind: NodeTask})
	}
	var edges []Edge
	for i := 0; i < 6; i++ {
		edges = append(edges, Edge{From: "entry", To: "n" + string(rune('A'+i))})
	}
	g := WorkflowGraph{Entry: "entry", Nodes: nodes, Edges: edges}

	var active int32
	var peak int32
	var mu sync.Mutex
	block := make(chan struct{})
	var once sync.Once

	runner := TaskRunnerFunc(func(ctx context.Context, node Node, execCtx ExecutionContext) RunnerOutput {
		if node.ID == "entry" {
			return RunnerOutput{}
		}
		cur := atomic.AddInt32(&active, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		once.Do(func() { close(block) })
		<-block
		atomic.AddInt32(&active, -1)
		return RunnerOutput{}
	})

	ex := &Executor{Runner: runner, ConcurrencyLimit: 2}
	summary, err := ex.Execute(context.Background(), g, ExecutionContext{}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.CompletedNodes) != 7 {
		t.Fatalf("expected all 7 nodes done, got %v", summary.CompletedNodes)
	}
	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("expected peak concurrency <= 2, got %d", peak)
	}
}

func TestGraphDefaultRequireGateAppliesWithoutNodeOverride(t *testing.T) {
	g := WorkflowGraph{
		Entry:    "A",
		Nodes:    []Node{{ID: "A", Kind: NodeTask}},
		Defaults: Defaults{RequireGate: true},
	}

	ex := &Executor{
		Runner:     TaskRunnerFunc(func(ctx context.Context, node Node, execCtx ExecutionContext) RunnerOutput { return RunnerOutput{} }),
		GateEngine: gates.NewEngine(gates.DefaultGatePolicy()),
	}

	summary, err := ex.Execute(context.Background(), g, ExecutionContext{}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsStr(summary.BlockedNodes, "A") {
		t.Fatalf("expected A blocked by the graph-wide gate default with no evidence, got %v", summary)
	}
}

func TestGraphDefaultRequireGateSkippedWhenFalse(t *testing.T) {
	g := WorkflowGraph{
		Entry:    "A",
		Nodes:    []Node{{ID: "A", Kind: NodeTask}},
		Defaults: Defaults{RequireGate: false},
	}

	ex := &Executor{
		Runner:     TaskRunnerFunc(func(ctx context.Context, node Node, execCtx ExecutionContext) RunnerOutput { return RunnerOutput{} }),
		GateEngine: gates.NewEngine(gates.DefaultGatePolicy()),
	}

	summary, err := ex.Execute(context.Background(), g, ExecutionContext{}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsStr(summary.CompletedNodes, "A") {
		t.Fatalf("expected A completed with no graph-wide gate default, got %v", summary)
	}
}

func TestValidateRejectsMissingNodeKind(t *testing.T) {
	g := WorkflowGraph{Entry: "A", Nodes: []Node{{ID: "A"}}}
	err := g.Validate()
	if err == nil || !strings.Contains(err.Error(), "struct") {
		t.Fatalf("expected struct validation error for missing node kind, got %v", err)
	}
}

func containsStr(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
