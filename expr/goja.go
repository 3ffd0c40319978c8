// Package expr provides a default ExpressionEvaluator backed by goja, an
// ECMAScript interpreter, for the "ecmascript" datamodel SCXML documents
// most commonly declare. It is a convenience implementation, not part of
// the interpreter core: callers may swap in any ExpressionEvaluator that
// satisfies scxmlgo's interface.
package expr

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// GojaEvaluator evaluates expressions as ECMAScript against a scope object
// bound into the JS runtime as top-level variables on each call.
//
// A single goja.Runtime is reused across calls (construction is not free)
// guarded by a mutex, since the interpreter's cooperative single-threaded
// scheduling (spec.md §5) means calls are never concurrent in practice, but
// embedding applications may share one evaluator across sessions.
type GojaEvaluator struct {
	mu  sync.Mutex
	vm  *goja.Runtime
}

// New creates a GojaEvaluator with a fresh goja.Runtime.
func New() *GojaEvaluator {
	return &GojaEvaluator{vm: goja.New()}
}

// Eval evaluates expr as a JS expression with scope entries bound as global
// variables, returning the resulting Go value.
func (g *GojaEvaluator) Eval(expr string, scope map[string]any) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.bind(scope)
	v, err := g.vm.RunString(expr)
	if err != nil {
		return nil, fmt.Errorf("expr: eval %q: %w", expr, err)
	}
	if v == nil {
		return nil, nil
	}
	return v.Export(), nil
}

// EvalCondition evaluates expr and coerces the result to a boolean using
// JS truthiness rules (via goja's ToBoolean), matching how SCXML documents
// commonly write conditions like `x > 0` or `In('foo')`.
func (g *GojaEvaluator) EvalCondition(expr string, scope map[string]any) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.bind(scope)
	v, err := g.vm.RunString(expr)
	if err != nil {
		return false, fmt.Errorf("expr: cond %q: %w", expr, err)
	}
	return v.ToBoolean(), nil
}

func (g *GojaEvaluator) bind(scope map[string]any) {
	for k, v := range scope {
		_ = g.vm.Set(k, v)
	}
}
