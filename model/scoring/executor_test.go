package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/ensemblehq/conductor/internal/clock"
	"github.com/ensemblehq/conductor/model"
	"github.com/stretchr/testify/assert"
)

func instantSleep(t *testing.T) {
	t.Helper()
	previous := clock.SleepFunc
	clock.SleepFunc = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { clock.SleepFunc = previous })
}

func TestExecutePassesFirstAttempt(t *testing.T) {
	instantSleep(t)
	state := NewState()
	executor := NewExecutor(nil)

	outcome, err := executor.Execute(context.Background(),
		Policy{Agent: "writer", Minimum: 0.7, MaxRetries: 2}, state,
		func(_ context.Context, attempt int) (interface{}, error) {
			return "draft", nil
		},
		func(_ context.Context, output interface{}, attempt int, previous *Result) (*Result, error) {
			return &Result{Score: 0.9}, nil
		})

	assert.NoError(t, err)
	assert.Equal(t, StatusPassed, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, "draft", outcome.Output)
	assert.Len(t, state.History, 1)
	assert.Empty(t, state.Retries)
}

func TestExecuteExhaustsRetriesReturnsLastOutput(t *testing.T) {
	instantSleep(t)
	state := NewState()
	executor := NewExecutor(nil)

	runs := 0
	outcome, err := executor.Execute(context.Background(),
		Policy{Agent: "writer", Minimum: 0.7, MaxRetries: 2}, state,
		func(_ context.Context, attempt int) (interface{}, error) {
			runs++
			return map[string]interface{}{"attempt": attempt}, nil
		},
		func(_ context.Context, output interface{}, attempt int, previous *Result) (*Result, error) {
			return &Result{Score: 0.5}, nil
		})

	assert.NoError(t, err)
	assert.Equal(t, 3, runs)
	assert.Equal(t, StatusMaxRetries, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, map[string]interface{}{"attempt": 3}, outcome.Output)
	assert.Len(t, state.History, 3)
	assert.Equal(t, 2, state.Retries["writer"])
	for _, entry := range state.History {
		assert.False(t, entry.Passed)
	}
}

func TestEvaluatorSeesPreviousResult(t *testing.T) {
	instantSleep(t)
	executor := NewExecutor(nil)

	var observed []*Result
	_, err := executor.Execute(context.Background(),
		Policy{Agent: "writer", Minimum: 0.7, MaxRetries: 1}, NewState(),
		func(_ context.Context, attempt int) (interface{}, error) {
			return "draft", nil
		},
		func(_ context.Context, output interface{}, attempt int, previous *Result) (*Result, error) {
			observed = append(observed, previous)
			return &Result{Score: 0.1}, nil
		})

	assert.NoError(t, err)
	assert.Len(t, observed, 2)
	assert.Nil(t, observed[0])
	assert.NotNil(t, observed[1])
	assert.Equal(t, 0.1, observed[1].Score)
}

func TestBackoffDelay(t *testing.T) {
	fixed := &model.BackoffConfig{Type: model.BackoffFixed, Delay: "100ms"}
	assert.Equal(t, 100*time.Millisecond, backoffDelay(fixed, 1))
	assert.Equal(t, 100*time.Millisecond, backoffDelay(fixed, 3))

	linear := &model.BackoffConfig{Type: model.BackoffLinear, Delay: "100ms"}
	assert.Equal(t, 100*time.Millisecond, backoffDelay(linear, 1))
	assert.Equal(t, 300*time.Millisecond, backoffDelay(linear, 3))

	exponential := &model.BackoffConfig{Type: model.BackoffExponential, Delay: "100ms", MaxDelay: "250ms"}
	assert.Equal(t, 100*time.Millisecond, backoffDelay(exponential, 1))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(exponential, 2))
	assert.Equal(t, 250*time.Millisecond, backoffDelay(exponential, 3))

	assert.Equal(t, time.Second, backoffDelay(nil, 1))
}

func TestAggregateMethods(t *testing.T) {
	base := func() *State {
		state := NewState()
		state.Record("a", 1, &Result{Score: 0.8, Passed: true})
		state.Record("b", 1, &Result{Score: 0.4})
		return state
	}

	minimum := base()
	Aggregate(minimum, &model.ScoringConfig{Method: model.AggregationMinimum})
	assert.InDelta(t, 0.4, *minimum.FinalScore, 1e-9)

	weighted := base()
	Aggregate(weighted, &model.ScoringConfig{
		Method:  model.AggregationWeightedAverage,
		Weights: map[string]float64{"a": 3, "b": 1},
	})
	assert.InDelta(t, 0.7, *weighted.FinalScore, 1e-9)

	geometric := base()
	Aggregate(geometric, &model.ScoringConfig{Method: model.AggregationGeometricMean})
	assert.InDelta(t, 0.565685, *geometric.FinalScore, 1e-5)

	metrics := minimum.QualityMetrics
	assert.Equal(t, 2, metrics.TotalAttempts)
	assert.InDelta(t, 0.6, metrics.AverageScore, 1e-9)
	assert.InDelta(t, 0.4, metrics.LowestScore, 1e-9)
	assert.InDelta(t, 0.8, metrics.HighestScore, 1e-9)
	assert.InDelta(t, 0.5, metrics.PassRate, 1e-9)
}

func TestAggregateUsesFinalAttemptPerAgent(t *testing.T) {
	state := NewState()
	state.Record("writer", 1, &Result{Score: 0.2})
	state.Record("writer", 2, &Result{Score: 0.9, Passed: true})
	Aggregate(state, &model.ScoringConfig{Method: model.AggregationMinimum})
	assert.InDelta(t, 0.9, *state.FinalScore, 1e-9)
	assert.Equal(t, 1, state.QualityMetrics.TotalRetries)
}
