package mcpshell

import (
	"context"
	"testing"

	"github.com/dshills/ccguard/gates"
)

func TestDispatchOrdersByPriority(t *testing.T) {
	var order []string
	s := New()
	s.Register(ToolFunc{ToolName: gates.ToolGuardValidate, Fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
		order = append(order, gates.ToolGuardValidate)
		return nil, nil
	}})
	s.Register(ToolFunc{ToolName: gates.ToolTestingRun, Fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
		order = append(order, gates.ToolTestingRun)
		return nil, nil
	}})

	calls := []gates.NextToolCall{
		{Tool: gates.ToolTestingRun, Priority: gates.PriorityTest},
		{Tool: gates.ToolGuardValidate, Priority: gates.PriorityGuard},
	}
	results := s.Dispatch(context.Background(), calls)

	if len(order) != 2 || order[0] != gates.ToolGuardValidate || order[1] != gates.ToolTestingRun {
		t.Fatalf("expected guard before test, got %v", order)
	}
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
	}
}

func TestDispatchUnregisteredToolReturnsErrorResult(t *testing.T) {
	s := New()
	results := s.Dispatch(context.Background(), []gates.NextToolCall{{Tool: "does_not_exist"}})
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("expected error result for unregistered tool, got %+v", results)
	}
}

func TestDispatchContinuesAfterOneToolFails(t *testing.T) {
	s := New()
	s.Register(ToolFunc{ToolName: "a", Fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return nil, context.DeadlineExceeded
	}})
	called := false
	s.Register(ToolFunc{ToolName: "b", Fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
		called = true
		return map[string]any{"ok": true}, nil
	}})

	results := s.Dispatch(context.Background(), []gates.NextToolCall{
		{Tool: "a", Priority: 1},
		{Tool: "b", Priority: 2},
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Err == nil {
		t.Fatal("expected first result to carry the tool error")
	}
	if !called || results[1].Err != nil {
		t.Fatalf("expected second tool to still run, called=%v results=%+v", called, results[1])
	}
}
