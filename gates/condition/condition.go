// Package condition compiles and evaluates the CEL expressions carried by
// WorkflowGraph edges: each decision node's output is exposed to the
// expression as the variable "output", and the expression must evaluate to
// a bool.
package condition

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

// Program is a compiled, reusable edge condition.
type Program struct {
	ast *cel.Ast
	env *cel.Env
}

var sharedEnv = mustEnv()

func mustEnv() *cel.Env {
	env, err := cel.NewEnv(cel.Variable("output", cel.DynType))
	if err != nil {
		panic(fmt.Sprintf("condition: failed to build CEL environment: %v", err))
	}
	return env
}

// Compile parses and type-checks expr. An empty expr is not a valid
// condition; callers treat an edge with no Condition as unconditional
// without calling Compile at all.
func Compile(expr string) (*Program, error) {
	ast, issues := sharedEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("condition: compiling %q: %w", expr, issues.Err())
	}
	return &Program{ast: ast, env: sharedEnv}, nil
}

// Evaluate runs the compiled program against a decision node's output and
// returns whether the edge is chosen.
func (p *Program) Evaluate(output any) (bool, error) {
	program, err := p.env.Program(p.ast)
	if err != nil {
		return false, fmt.Errorf("condition: building program: %w", err)
	}
	out, _, err := program.Eval(map[string]any{"output": output})
	if err != nil {
		return false, fmt.Errorf("condition: evaluating: %w", err)
	}
	boolVal, ok := out.(ref.Val).Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition: expression did not evaluate to bool, got %T", out.Value())
	}
	return boolVal, nil
}
