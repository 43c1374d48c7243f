package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ensemblehq/conductor/internal/clock"
	"github.com/ensemblehq/conductor/logging"
	"github.com/ensemblehq/conductor/model"
)

const (
	StatusPassed     = "passed"
	StatusMaxRetries = "max_retries_exceeded"
)

// RunFunc produces one attempt's output.
type RunFunc func(ctx context.Context, attempt int) (interface{}, error)

// EvaluateFunc scores one attempt's output. previous carries the prior
// attempt's verdict, nil on the first attempt.
type EvaluateFunc func(ctx context.Context, output interface{}, attempt int, previous *Result) (*Result, error)

// Policy configures a single step's quality gate.
type Policy struct {
	Agent      string
	Minimum    float64
	MaxRetries int
	Backoff    *model.BackoffConfig
}

// Outcome is what the gate hands back to the step loop. Output always holds
// the last attempt's response, even when the gate gave up.
type Outcome struct {
	Output   interface{}
	Result   *Result
	Attempts int
	Status   string
}

// Executor runs a step under a retry-until-threshold quality gate.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates a gate executor.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Executor{logger: logger}
}

// Execute runs the step, scores its output and retries until the score
// reaches the policy minimum or maxRetries is exhausted. Exhausting retries
// is not a failure: the last attempt's output is returned with a warning and
// status max_retries_exceeded. Attempt results are recorded into state.
func (e *Executor) Execute(ctx context.Context, policy Policy, state *State, run RunFunc, evaluate EvaluateFunc) (*Outcome, error) {
	var previous *Result
	maxAttempts := policy.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, err := run(ctx, attempt)
		if err != nil {
			return nil, err
		}
		result, err := evaluate(ctx, output, attempt, previous)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate attempt %d for %v: %w", attempt, policy.Agent, err)
		}
		result.Passed = result.Score >= policy.Minimum
		if state != nil {
			state.Record(policy.Agent, attempt, result)
		}
		if result.Passed {
			return &Outcome{Output: output, Result: result, Attempts: attempt, Status: StatusPassed}, nil
		}
		if attempt == maxAttempts {
			e.logger.Warn("quality gate exhausted retries, returning last output",
				"agent", policy.Agent,
				"score", result.Score,
				"minimum", policy.Minimum,
				"attempts", attempt)
			return &Outcome{Output: output, Result: result, Attempts: attempt, Status: StatusMaxRetries}, nil
		}
		e.logger.Info("score below minimum, retrying",
			"agent", policy.Agent,
			"score", result.Score,
			"minimum", policy.Minimum,
			"attempt", attempt)
		previous = result
		if err := clock.Sleep(ctx, backoffDelay(policy.Backoff, attempt)); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("unreachable: gate loop for %v exited", policy.Agent)
}

// backoffDelay computes the wait before the next attempt. attempt is the
// 1-based attempt that just failed.
func backoffDelay(config *model.BackoffConfig, attempt int) time.Duration {
	if config == nil {
		return time.Second
	}
	delay := config.DelayDuration()
	switch config.Type {
	case model.BackoffLinear:
		delay = delay * time.Duration(attempt)
	case model.BackoffExponential:
		delay = delay << uint(attempt-1)
	}
	if max := config.MaxDelayDuration(); max > 0 && delay > max {
		delay = max
	}
	return delay
}
