package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/plancheck/pkg/schema"
)

// RuleEnv is the environment of allow-list rule expressions.
var RuleEnv = map[string]any{
	"object": "",
	"slot":   "",
}

// ExprEngine implements Engine using expr-lang/expr. It backs the "expr:"
// allow-list rules, e.g. `object startsWith "red" && slot != "Inspection.slot"`.
// Thread-safe: compiled *vm.Program objects are cached per expression.
type ExprEngine struct {
	env map[string]any

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates an engine whose programs are type-checked against RuleEnv.
func NewExprEngine() *ExprEngine {
	return NewExprEngineWithEnv(RuleEnv)
}

// NewExprEngineWithEnv creates an engine type-checked against env.
func NewExprEngineWithEnv(env map[string]any) *ExprEngine {
	return &ExprEngine{
		env:   env,
		cache: make(map[string]*vm.Program),
	}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate compiles (or retrieves from cache) an expression and runs it with data as env.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	env := data
	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out, nil
}

// Compile validates an expression without running it.
func (e *ExprEngine) Compile(expression string) error {
	_, err := e.getOrCompile(expression)
	return err
}

func (e *ExprEngine) getOrCompile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(e.env),
		expr.AsBool(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

var _ Engine = (*ExprEngine)(nil)
