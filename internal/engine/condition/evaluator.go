// Package condition evaluates CEL expressions for conditional-node branch
// selection and loop exit conditions, adapted from the teacher's
// cmd/workflow-runner/condition evaluator with a compiled-program cache
// guarded by a RWMutex.
package condition

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// Condition names an expression and the language it's written in. CEL is
// the only supported type today; the field exists so a future language can
// be added without changing the shape callers pass around.
type Condition struct {
	Type       string
	Expression string
}

// Evaluator compiles and caches CEL programs keyed by their normalized
// expression text.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewEvaluator returns an Evaluator with an empty program cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]cel.Program)}
}

// Evaluate runs cond against a node's output and the workflow's flattened
// execution context, returning the boolean branch decision.
func (e *Evaluator) Evaluate(cond Condition, output interface{}, execCtx map[string]interface{}) (bool, error) {
	switch cond.Type {
	case "cel", "":
		return e.evaluateCEL(cond.Expression, output, execCtx)
	default:
		return false, fmt.Errorf("unsupported condition type: %s", cond.Type)
	}
}

func (e *Evaluator) evaluateCEL(expr string, output, execCtx interface{}) (bool, error) {
	// $.field is accepted as shorthand for output.field.
	normalized := strings.ReplaceAll(expr, "$.", "output.")

	e.mu.RLock()
	prg, ok := e.cache[normalized]
	e.mu.RUnlock()

	if !ok {
		var err error
		prg, err = e.compile(normalized)
		if err != nil {
			return false, err
		}
		e.mu.Lock()
		e.cache[normalized] = prg
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"output": output,
		"ctx":    execCtx,
	})
	if err != nil {
		return false, fmt.Errorf("cel evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel expression did not return boolean, got %T", out.Value())
	}
	return result, nil
}

func (e *Evaluator) compile(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("output", cel.DynType),
		cel.Variable("ctx", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	return prg, nil
}

// CacheSize reports the number of distinct compiled programs cached.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
