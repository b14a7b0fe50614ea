package condition

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

// Evaluator evaluates workflow expressions using CEL (Common Expression
// Language). Compiled programs are cached per expression.
type Evaluator struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewEvaluator creates a new expression evaluator with caching
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]cel.Program),
	}
}

// Evaluate evaluates a boolean expression against the workflow variables
func (e *Evaluator) Evaluate(expr string, variables map[string]any) (bool, error) {
	out, err := e.eval(expr, variables)
	if err != nil {
		return false, err
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return boolean, got %T", out.Value())
	}
	return result, nil
}

// EvaluateItems evaluates an expression expected to yield an ordered sequence
func (e *Evaluator) EvaluateItems(expr string, variables map[string]any) ([]any, error) {
	out, err := e.eval(expr, variables)
	if err != nil {
		return nil, err
	}

	native, err := out.ConvertToNative(reflect.TypeOf([]any{}))
	if err != nil {
		return nil, fmt.Errorf("expression did not return a list: %w", err)
	}
	return native.([]any), nil
}

func (e *Evaluator) eval(expr string, variables map[string]any) (ref.Val, error) {
	// Workflows may reference variables as $.name; normalize to vars.name
	expr = strings.ReplaceAll(expr, "$.", "vars.")

	e.mu.RLock()
	prg, exists := e.cache[expr]
	e.mu.RUnlock()

	if !exists {
		var err error
		prg, err = e.compile(expr)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		e.cache[expr] = prg
		e.mu.Unlock()
	}

	if variables == nil {
		variables = map[string]any{}
	}
	out, _, err := prg.Eval(map[string]any{
		"vars": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("expression evaluation error: %w", err)
	}

	return out, nil
}

// compile builds a CEL program. The environment exposes only the variables
// map; there are no host function bindings.
func (e *Evaluator) compile(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("vars", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create expression env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("expression compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create expression program: %w", err)
	}
	return prg, nil
}

// ClearCache clears the compiled expression cache
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

// CacheSize returns the number of cached expressions
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
