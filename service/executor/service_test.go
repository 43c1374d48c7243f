package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ensemblehq/conductor/internal/clock"
	"github.com/ensemblehq/conductor/model"
	"github.com/ensemblehq/conductor/model/scoring"
	"github.com/ensemblehq/conductor/runtime/execution"
	"github.com/ensemblehq/conductor/service/agent"
	"github.com/ensemblehq/conductor/service/agent/approval"
	"github.com/ensemblehq/conductor/service/resumption"
	"github.com/stretchr/testify/assert"
)

// stubAgent is a scripted agent recording every invocation.
type stubAgent struct {
	name  string
	fn    func(ctx context.Context, execCtx *agent.Context) (*agent.Response, error)
	calls int
}

func (a *stubAgent) Name() string { return a.name }

func (a *stubAgent) Execute(ctx context.Context, execCtx *agent.Context) (*agent.Response, error) {
	a.calls++
	return a.fn(ctx, execCtx)
}

func echoAgent(name string) *stubAgent {
	return &stubAgent{name: name, fn: func(_ context.Context, execCtx *agent.Context) (*agent.Response, error) {
		return &agent.Response{Data: execCtx.Input}, nil
	}}
}

func constAgent(name string, data interface{}) *stubAgent {
	return &stubAgent{name: name, fn: func(_ context.Context, _ *agent.Context) (*agent.Response, error) {
		return &agent.Response{Data: data}, nil
	}}
}

func instantSleep(t *testing.T) {
	t.Helper()
	previous := clock.SleepFunc
	clock.SleepFunc = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { clock.SleepFunc = previous })
}

func TestExecuteChainsStepOutputs(t *testing.T) {
	service := New()
	service.RegisterAgent(constAgent("research", "findings"))
	service.RegisterAgent(echoAgent("write"))

	ensemble := model.NewEnsemble("pipeline")
	ensemble.NewStep("research")
	ensemble.NewStep("write")

	output, err := service.Execute(context.Background(), ensemble, "topic")
	assert.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, output.Status)
	// The write step received the research output by default.
	assert.Equal(t, "findings", output.Output)
	assert.Len(t, output.Metrics.Agents, 2)
	assert.True(t, output.Metrics.Agents[0].Success)
	assert.NotEmpty(t, output.ExecutionID)
}

func TestExecuteFirstStepGetsEnsembleInput(t *testing.T) {
	service := New()
	service.RegisterAgent(echoAgent("echo"))

	ensemble := model.NewEnsemble("single")
	ensemble.NewStep("echo")

	output, err := service.Execute(context.Background(), ensemble, map[string]interface{}{"topic": "go"})
	assert.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"topic": "go"}, output.Output)
}

func TestExecuteInterpolatesExplicitInput(t *testing.T) {
	service := New()
	service.RegisterAgent(constAgent("research", map[string]interface{}{"topic": "go"}))
	service.RegisterAgent(echoAgent("write"))

	ensemble := model.NewEnsemble("pipeline")
	ensemble.NewStep("research").ID = "research"
	step := ensemble.NewStep("write")
	step.Input = map[string]interface{}{
		"subject": "${research.output.topic}",
		"source":  "${input.origin}",
	}

	output, err := service.Execute(context.Background(), ensemble,
		map[string]interface{}{"origin": "cli"})
	assert.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"subject": "go", "source": "cli"}, output.Output)
}

func TestExecuteEmptyFlow(t *testing.T) {
	service := New()
	ensemble := model.NewEnsemble("empty")

	output, err := service.Execute(context.Background(), ensemble, nil)
	assert.NoError(t, err)
	assert.Equal(t, map[string]interface{}{}, output.Output)
}

func TestExecuteOutputExpression(t *testing.T) {
	service := New()
	service.RegisterAgent(constAgent("research", "findings"))

	ensemble := model.NewEnsemble("pipeline")
	ensemble.NewStep("research").ID = "research"
	ensemble.Output = map[string]interface{}{"summary": "${research.output}"}

	output, err := service.Execute(context.Background(), ensemble, nil)
	assert.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"summary": "findings"}, output.Output)
}

func TestExecuteFailsFast(t *testing.T) {
	service := New()
	service.RegisterAgent(constAgent("first", "ok"))
	service.RegisterAgent(&stubAgent{name: "broken", fn: func(_ context.Context, _ *agent.Context) (*agent.Response, error) {
		return nil, fmt.Errorf("downstream unavailable")
	}})
	never := constAgent("never", "unreachable")
	service.RegisterAgent(never)

	ensemble := model.NewEnsemble("pipeline")
	ensemble.NewStep("first")
	ensemble.NewStep("broken")
	ensemble.NewStep("never")

	output, err := service.Execute(context.Background(), ensemble, nil)
	assert.Nil(t, output)

	// A step failure surfaces with ensemble context, wrapping the agent
	// failure underneath.
	var failure *EnsembleExecutionError
	assert.True(t, errors.As(err, &failure))
	assert.Equal(t, "pipeline", failure.Ensemble)
	var cause *AgentExecutionError
	assert.True(t, errors.As(err, &cause))
	assert.Equal(t, "broken", cause.Agent)
	assert.Equal(t, 0, never.calls)
}

func TestExecuteUnknownAgent(t *testing.T) {
	service := New()
	ensemble := model.NewEnsemble("pipeline")
	ensemble.NewStep("ghost")

	_, err := service.Execute(context.Background(), ensemble, nil)

	var failure *EnsembleExecutionError
	assert.True(t, errors.As(err, &failure))
	var notFound *agent.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestExecuteStepTimeout(t *testing.T) {
	service := New()
	service.RegisterAgent(&stubAgent{name: "slow", fn: func(ctx context.Context, _ *agent.Context) (*agent.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	ensemble := model.NewEnsemble("pipeline")
	ensemble.NewStep("slow").Timeout = "20ms"

	_, err := service.Execute(context.Background(), ensemble, nil)

	var failure *AgentExecutionError
	assert.True(t, errors.As(err, &failure))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecuteScoringGate(t *testing.T) {
	instantSleep(t)
	service := New()
	attempts := 0
	service.RegisterAgent(&stubAgent{name: "write", fn: func(_ context.Context, execCtx *agent.Context) (*agent.Response, error) {
		attempts++
		return &agent.Response{Data: fmt.Sprintf("draft-%d", execCtx.Attempt)}, nil
	}})
	service.RegisterEvaluator(NewEvaluator("quality",
		func(_ context.Context, _ interface{}, _ int, _ *scoring.Result) (*scoring.Result, error) {
			return &scoring.Result{Score: 0.5}, nil
		}))

	ensemble := model.NewEnsemble("pipeline")
	ensemble.Scoring = &model.ScoringConfig{
		Enabled:    true,
		Thresholds: &model.Thresholds{Minimum: 0.7},
		MaxRetries: 2,
		Backoff:    &model.BackoffConfig{Type: model.BackoffFixed, Delay: "1ms"},
	}
	ensemble.NewStep("write").Scoring = &model.StepScoring{Evaluator: "quality"}

	output, err := service.Execute(context.Background(), ensemble, nil)

	// Exhausting retries is a warning, not a failure: the last attempt's
	// output is still the ensemble output.
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "draft-3", output.Output)
	assert.Len(t, output.Scoring.History, 3)
	assert.Equal(t, 2, output.Scoring.Retries["write"])
	assert.NotNil(t, output.Scoring.FinalScore)
	assert.InDelta(t, 0.5, *output.Scoring.FinalScore, 1e-9)
}

func TestExecuteScoringViewInterpolates(t *testing.T) {
	service := New()
	service.RegisterAgent(constAgent("write", "draft"))
	service.RegisterAgent(echoAgent("report"))
	service.RegisterEvaluator(NewEvaluator("quality",
		func(_ context.Context, _ interface{}, _ int, _ *scoring.Result) (*scoring.Result, error) {
			return &scoring.Result{Score: 0.9}, nil
		}))

	ensemble := model.NewEnsemble("pipeline")
	ensemble.Scoring = &model.ScoringConfig{
		Enabled:    true,
		Thresholds: &model.Thresholds{Minimum: 0.7},
	}
	ensemble.NewStep("write").Scoring = &model.StepScoring{Evaluator: "quality"}
	ensemble.NewStep("report").Input = map[string]interface{}{
		"lastScore": "${scoring.scoreHistory[0].score}",
	}

	output, err := service.Execute(context.Background(), ensemble, nil)
	assert.NoError(t, err)
	// The scoring view refreshed after the gated step resolves in later
	// step inputs.
	assert.Equal(t, map[string]interface{}{"lastScore": 0.9}, output.Output)
}

func TestExecuteScoringMissingEvaluator(t *testing.T) {
	service := New()
	service.RegisterAgent(constAgent("write", "draft"))

	ensemble := model.NewEnsemble("pipeline")
	ensemble.NewStep("write").Scoring = &model.StepScoring{Evaluator: "missing"}

	_, err := service.Execute(context.Background(), ensemble, nil)
	var failure *ConfigurationError
	assert.True(t, errors.As(err, &failure))
}

func TestExecuteStateDeclarations(t *testing.T) {
	service := New()
	service.RegisterAgent(&stubAgent{name: "research", fn: func(_ context.Context, execCtx *agent.Context) (*agent.Response, error) {
		execCtx.State.Set("findings", "gathered")
		execCtx.State.Set("undeclared", "dropped")
		return &agent.Response{Data: "done"}, nil
	}})
	service.RegisterAgent(&stubAgent{name: "write", fn: func(_ context.Context, execCtx *agent.Context) (*agent.Response, error) {
		return &agent.Response{Data: execCtx.State.Data["findings"]}, nil
	}})

	ensemble := model.NewEnsemble("pipeline")
	ensemble.State = &model.StateConfig{Initial: map[string]interface{}{
		"findings": "",
		"ignored":  "never read",
	}}
	ensemble.NewStep("research").State = &model.StateDeclaration{Set: []string{"findings"}}
	ensemble.NewStep("write").State = &model.StateDeclaration{Use: []string{"findings"}}

	output, err := service.Execute(context.Background(), ensemble, nil)
	assert.NoError(t, err)
	assert.Equal(t, "gathered", output.Output)
	assert.NotNil(t, output.StateReport)
	assert.Contains(t, output.StateReport.UnusedKeys, "ignored")
	assert.NotContains(t, output.StateReport.UnusedKeys, "findings")
}

func TestSuspendAndResume(t *testing.T) {
	service := New()
	research := constAgent("research", "findings")
	service.RegisterAgent(research)
	service.RegisterAgent(approval.New())
	service.RegisterAgent(echoAgent("finalize"))

	ensemble := model.NewEnsemble("reviewed")
	ensemble.NewStep("research")
	ensemble.NewStep("approval").Input = map[string]interface{}{"question": "publish?"}
	ensemble.NewStep("finalize")

	suspended, err := service.Execute(context.Background(), ensemble, nil)
	assert.NoError(t, err)
	assert.Equal(t, execution.StatusSuspended, suspended.Status)
	assert.NotNil(t, suspended.Suspension)
	assert.NotEmpty(t, suspended.Suspension.Token)
	assert.Equal(t, "approval required", suspended.Suspension.Reason)
	assert.Equal(t, 1, research.calls)

	decision := map[string]interface{}{"approved": true}
	resumed, err := service.Resume(context.Background(), suspended.Suspension.Token, decision)
	assert.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, resumed.Status)
	// finalize echoed the approval step's output, i.e. the resume data.
	assert.Equal(t, decision, resumed.Output)
	// Earlier steps do not re-run on resume.
	assert.Equal(t, 1, research.calls)

	// The token is one-shot.
	_, err = service.Resume(context.Background(), suspended.Suspension.Token, decision)
	assert.ErrorIs(t, err, resumption.ErrTokenNotFound)
}

func TestResumePreservesPriorOutputs(t *testing.T) {
	service := New()
	service.RegisterAgent(constAgent("research", "findings"))
	service.RegisterAgent(approval.New())
	service.RegisterAgent(echoAgent("finalize"))

	ensemble := model.NewEnsemble("reviewed")
	ensemble.NewStep("research").ID = "research"
	ensemble.NewStep("approval")
	step := ensemble.NewStep("finalize")
	step.Input = map[string]interface{}{"base": "${research.output}"}

	suspended, err := service.Execute(context.Background(), ensemble, nil)
	assert.NoError(t, err)

	resumed, err := service.Resume(context.Background(), suspended.Suspension.Token, nil)
	assert.NoError(t, err)
	// The context captured at suspension still resolves for later steps.
	assert.Equal(t, map[string]interface{}{"base": "findings"}, resumed.Output)
}
