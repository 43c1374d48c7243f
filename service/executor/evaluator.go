package executor

import (
	"context"

	"github.com/ensemblehq/conductor/model/scoring"
)

// Evaluator scores a step's output. Evaluators are registered by name and
// referenced from step scoring declarations.
type Evaluator interface {
	Name() string

	Evaluate(ctx context.Context, output interface{}, attempt int, previous *scoring.Result) (*scoring.Result, error)
}

type funcEvaluator struct {
	name string
	fn   func(ctx context.Context, output interface{}, attempt int, previous *scoring.Result) (*scoring.Result, error)
}

func (e *funcEvaluator) Name() string {
	return e.name
}

func (e *funcEvaluator) Evaluate(ctx context.Context, output interface{}, attempt int, previous *scoring.Result) (*scoring.Result, error) {
	return e.fn(ctx, output, attempt, previous)
}

// NewEvaluator adapts a plain function into a named Evaluator.
func NewEvaluator(name string, fn func(ctx context.Context, output interface{}, attempt int, previous *scoring.Result) (*scoring.Result, error)) Evaluator {
	return &funcEvaluator{name: name, fn: fn}
}
