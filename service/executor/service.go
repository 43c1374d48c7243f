package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ensemblehq/conductor/internal/clock"
	"github.com/ensemblehq/conductor/internal/idgen"
	"github.com/ensemblehq/conductor/logging"
	"github.com/ensemblehq/conductor/model"
	"github.com/ensemblehq/conductor/model/expander"
	"github.com/ensemblehq/conductor/model/scoring"
	"github.com/ensemblehq/conductor/model/state"
	"github.com/ensemblehq/conductor/runtime/execution"
	"github.com/ensemblehq/conductor/service/agent"
	"github.com/ensemblehq/conductor/service/resumption"
	resumemem "github.com/ensemblehq/conductor/service/resumption/memory"
	"github.com/ensemblehq/conductor/service/status"
	"github.com/ensemblehq/conductor/tracing"
)

// DefaultStepTimeout bounds an agent call when the step declares no timeout.
const DefaultStepTimeout = 30 * time.Second

// Service drives ensemble execution: it resolves agents, threads state and
// scoring through the sequential step loop, and supports suspend/resume.
type Service struct {
	registry   *agent.Registry
	resumption resumption.Service
	tracker    *status.Tracker
	expander   *expander.Chain
	gate       *scoring.Executor
	logger     *slog.Logger
	timeout    time.Duration

	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// Option customises the executor service.
type Option func(*Service)

// WithRegistry overrides the agent registry.
func WithRegistry(registry *agent.Registry) Option {
	return func(s *Service) { s.registry = registry }
}

// WithResumption overrides the suspended-execution store.
func WithResumption(service resumption.Service) Option {
	return func(s *Service) { s.resumption = service }
}

// WithTracker attaches a live-status tracker.
func WithTracker(tracker *status.Tracker) Option {
	return func(s *Service) { s.tracker = tracker }
}

// WithLogger overrides the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithDefaultTimeout overrides the per-step timeout default.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(s *Service) { s.timeout = timeout }
}

// New creates an executor service.
func New(options ...Option) *Service {
	s := &Service{
		registry:   agent.NewRegistry(),
		resumption: resumemem.New(),
		expander:   expander.New(),
		logger:     logging.Default(),
		timeout:    DefaultStepTimeout,
		evaluators: map[string]Evaluator{},
	}
	for _, option := range options {
		option(s)
	}
	s.gate = scoring.NewExecutor(s.logger)
	return s
}

// RegisterAgent adds a user-defined agent.
func (s *Service) RegisterAgent(a agent.Agent) {
	s.registry.Register(a)
}

// RegisterEvaluator adds a named scoring evaluator.
func (s *Service) RegisterEvaluator(e Evaluator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluators[e.Name()] = e
}

func (s *Service) evaluator(name string) (Evaluator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.evaluators[name]
	return e, ok
}

// run bundles everything one execution threads through the step loop.
type run struct {
	id       string
	ensemble *model.Ensemble
	context  execution.Context
	state    *state.Manager
	scoring  *scoring.State
	metrics  *execution.Metrics
	resume   interface{}
}

// Execute runs an ensemble from the first step.
func (s *Service) Execute(ctx context.Context, ensemble *model.Ensemble, input interface{}) (out *execution.Output, err error) {
	if ensemble == nil {
		return nil, &ConfigurationError{Message: "ensemble is required"}
	}
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("executor.Execute %s", ensemble.Name), "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"ensemble.name": ensemble.Name})

	if issues := ensemble.Validate(); len(issues) > 0 {
		return nil, &ConfigurationError{Message: "invalid ensemble " + ensemble.Name, Cause: issues[0]}
	}

	r := &run{
		id:       idgen.New(),
		ensemble: ensemble,
		context:  execution.NewContext(input),
		metrics:  &execution.Metrics{Ensemble: ensemble.Name},
	}
	if ensemble.State != nil {
		var initial map[string]interface{}
		if ensemble.State.Initial != nil {
			initial = ensemble.State.Initial
		}
		r.state = state.New(initial, state.WithLogger(s.logger))
		r.context.SetStateView(r.state.Snapshot())
	}
	if ensemble.Scoring != nil && ensemble.Scoring.Enabled {
		r.scoring = scoring.NewState()
		r.context.SetScoringView(r.scoring.View())
	}
	s.trackStart(ctx, r)
	return s.runLoop(ctx, r, 0)
}

// Resume consumes a one-time token and re-enters the step loop at the
// suspended step. The token is claimed before the run restarts, so a second
// call with the same token fails with resumption.ErrTokenNotFound.
func (s *Service) Resume(ctx context.Context, token string, resumeInput map[string]interface{}) (out *execution.Output, err error) {
	ctx, span := tracing.StartSpan(ctx, "executor.Resume", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	snapshot, err := s.resumption.Consume(ctx, token)
	if err != nil {
		return nil, err
	}
	ensemble := snapshot.Ensemble
	if ensemble == nil {
		return nil, &ConfigurationError{Message: "suspended execution has no ensemble"}
	}
	span.WithAttributes(map[string]string{"ensemble.name": ensemble.Name})

	r := &run{
		id:       snapshot.ExecutionID,
		ensemble: ensemble,
		context:  snapshot.Context,
		scoring:  snapshot.Scoring,
		metrics:  snapshot.Metrics,
	}
	if r.context == nil {
		r.context = execution.NewContext(nil)
	}
	if r.metrics == nil {
		r.metrics = &execution.Metrics{Ensemble: ensemble.Name}
	}
	if ensemble.State != nil || snapshot.State != nil {
		r.state = state.New(snapshot.State,
			state.WithLogger(s.logger),
			state.WithAccessLog(snapshot.StateAccessLog))
		r.context.SetStateView(r.state.Snapshot())
	}
	if r.scoring != nil {
		r.context.SetScoringView(r.scoring.View())
	}
	r.context.MergeInput(resumeInput)
	// A non-nil marker tells the resumed step it is being re-entered even
	// when the caller supplied no data.
	if resumeInput != nil {
		r.resume = resumeInput
	} else {
		r.resume = map[string]interface{}{}
	}
	s.trackStart(ctx, r)
	return s.runLoop(ctx, r, snapshot.ResumeFromStep)
}

// runLoop executes steps from startStep to the end of the flow.
func (s *Service) runLoop(ctx context.Context, r *run, startStep int) (*execution.Output, error) {
	started := clock.Now()
	var lastOutput interface{}
	if startStep > 0 && startStep <= len(r.ensemble.Flow) {
		lastOutput = r.context.StepOutput(r.ensemble.Flow[startStep-1].Key())
	}

	for i := startStep; i < len(r.ensemble.Flow); i++ {
		step := r.ensemble.Flow[i]
		stepInput := s.resolveInput(r, step, i, lastOutput)

		target, err := s.registry.Lookup(step.Agent)
		if err != nil {
			return s.fail(ctx, r, started, &EnsembleExecutionError{Ensemble: r.ensemble.Name, Cause: err})
		}

		execCtx := s.agentContext(r, step, stepInput)
		if i == startStep {
			execCtx.Resume = r.resume
		}

		stepStarted := clock.Now()
		response, gateOutcome, err := s.executeStep(ctx, r, step, target, execCtx)
		duration := clock.Now().Sub(stepStarted)

		if reason, payload, ok := agent.IsSuspendError(err); ok {
			return s.suspend(ctx, r, i, started, reason, payload)
		}
		if err != nil {
			failure := &AgentExecutionError{Agent: step.Agent, Step: step.Key(), Cause: err}
			r.metrics.Agents = append(r.metrics.Agents, execution.AgentMetric{
				Name: step.Key(), Duration: duration, Success: false,
			})
			return s.fail(ctx, r, started, &EnsembleExecutionError{Ensemble: r.ensemble.Name, Cause: failure})
		}

		if r.state != nil && execCtx.State != nil {
			updates, entries := execCtx.State.PendingUpdates()
			r.state = r.state.Apply(updates, entries)
			r.context.SetStateView(r.state.Snapshot())
		}

		r.metrics.Agents = append(r.metrics.Agents, execution.AgentMetric{
			Name:     step.Key(),
			Duration: duration,
			Cached:   response.Cached,
			Success:  true,
		})
		if response.Cached {
			r.metrics.CacheHits++
		}

		lastOutput = response.Data
		r.context.SetStepOutput(step.Key(), response.Data)
		if r.scoring != nil {
			r.context.SetScoringView(r.scoring.View())
		}
		if gateOutcome != nil && gateOutcome.Status == scoring.StatusMaxRetries {
			s.logger.Warn("step finished below quality threshold",
				"ensemble", r.ensemble.Name,
				"step", step.Key(),
				"attempts", gateOutcome.Attempts)
		}
		s.trackProgress(ctx, r, step.Key(), i, response.Data)
	}
	return s.complete(ctx, r, started, lastOutput)
}

// resolveInput implements the step input cascade: explicit expression, then
// previous output, then the ensemble input for the first step.
func (s *Service) resolveInput(r *run, step *model.Step, index int, lastOutput interface{}) interface{} {
	if step.Input != nil {
		return s.expander.Expand(step.Input, expander.Scope(r.context))
	}
	if index > 0 {
		return lastOutput
	}
	return r.context.Input()
}

func (s *Service) agentContext(r *run, step *model.Step, input interface{}) *agent.Context {
	outputs := map[string]interface{}{}
	for _, prior := range r.ensemble.Flow {
		if output := r.context.StepOutput(prior.Key()); output != nil {
			outputs[prior.Key()] = output
		}
	}
	execCtx := &agent.Context{
		ExecutionID: r.id,
		Ensemble:    r.ensemble.Name,
		Step:        step.Key(),
		Attempt:     1,
		Input:       input,
		Outputs:     outputs,
	}
	if r.state != nil && step.State != nil {
		execCtx.State = r.state.StateForAgent(step.AgentName(), step.State)
	}
	return execCtx
}

// executeStep runs one step, through the scoring gate when the step declares
// one.
func (s *Service) executeStep(ctx context.Context, r *run, step *model.Step, target agent.Agent, execCtx *agent.Context) (*agent.Response, *scoring.Outcome, error) {
	timeout := s.timeout
	if declared, err := step.TimeoutDuration(); err == nil && declared > 0 {
		timeout = declared
	}

	if step.Scoring == nil {
		response, err := s.invoke(ctx, target, execCtx, timeout)
		return response, nil, err
	}

	evaluator, ok := s.evaluator(step.Scoring.Evaluator)
	if !ok {
		return nil, nil, &ConfigurationError{
			Message: fmt.Sprintf("evaluator %v is not registered", step.Scoring.Evaluator),
		}
	}
	policy := s.gatePolicy(r.ensemble, step)

	outcome, err := s.gate.Execute(ctx, policy, r.scoring,
		func(ctx context.Context, attempt int) (interface{}, error) {
			execCtx.Attempt = attempt
			return s.invoke(ctx, target, execCtx, timeout)
		},
		func(ctx context.Context, output interface{}, attempt int, previous *scoring.Result) (*scoring.Result, error) {
			response := output.(*agent.Response)
			return evaluator.Evaluate(ctx, response.Data, attempt, previous)
		})
	if err != nil {
		return nil, nil, err
	}
	return outcome.Output.(*agent.Response), outcome, nil
}

// gatePolicy folds step scoring overrides over the ensemble defaults.
func (s *Service) gatePolicy(ensemble *model.Ensemble, step *model.Step) scoring.Policy {
	policy := scoring.Policy{Agent: step.AgentName()}
	if defaults := ensemble.Scoring; defaults != nil {
		if defaults.Thresholds != nil {
			policy.Minimum = defaults.Thresholds.Minimum
		}
		policy.MaxRetries = defaults.MaxRetries
		policy.Backoff = defaults.Backoff
	}
	if override := step.Scoring; override != nil {
		if override.Thresholds != nil {
			policy.Minimum = override.Thresholds.Minimum
		}
		if override.MaxRetries != nil {
			policy.MaxRetries = *override.MaxRetries
		}
		if override.Backoff != nil {
			policy.Backoff = override.Backoff
		}
	}
	return policy
}

// invoke races the agent call against the step timeout. A timeout counts as
// a failed execution and aborts the ensemble.
func (s *Service) invoke(ctx context.Context, target agent.Agent, execCtx *agent.Context, timeout time.Duration) (*agent.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		response *agent.Response
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		response, err := target.Execute(ctx, execCtx)
		done <- outcome{response: response, err: err}
	}()
	select {
	case result := <-done:
		if result.err != nil {
			return nil, result.err
		}
		if result.response == nil {
			result.response = &agent.Response{}
		}
		return result.response, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("agent %v timed out after %v: %w", target.Name(), timeout, ctx.Err())
	}
}

// suspend snapshots the run and parks it with the resumption service.
func (s *Service) suspend(ctx context.Context, r *run, stepIndex int, started time.Time, reason string, payload interface{}) (*execution.Output, error) {
	r.metrics.TotalDuration += clock.Now().Sub(started)
	snapshot := &execution.Suspended{
		ExecutionID:    r.id,
		Ensemble:       r.ensemble,
		Context:        r.context.Clone(),
		Scoring:        r.scoring.Clone(),
		Metrics:        r.metrics.Clone(),
		ResumeFromStep: stepIndex,
		SuspendedAt:    clock.Now(),
		Reason:         reason,
	}
	if r.state != nil {
		snapshot.State = r.state.Snapshot()
		snapshot.StateAccessLog = r.state.AccessLog()
	}
	token, err := s.resumption.Suspend(ctx, snapshot)
	if err != nil {
		return s.fail(ctx, r, started, &EnsembleExecutionError{Ensemble: r.ensemble.Name, Cause: err})
	}
	s.trackSuspend(ctx, r)
	s.logger.Info("execution suspended",
		"ensemble", r.ensemble.Name,
		"execution", r.id,
		"step", stepIndex,
		"reason", reason)
	return &execution.Output{
		ExecutionID: r.id,
		Metrics:     r.metrics,
		Suspension:  &execution.Suspension{Token: token, Reason: reason, Payload: payload},
		Status:      execution.StatusSuspended,
	}, nil
}

// complete aggregates scoring, resolves the final output and stamps total
// duration.
func (s *Service) complete(ctx context.Context, r *run, started time.Time, lastOutput interface{}) (*execution.Output, error) {
	if r.scoring != nil {
		scoring.Aggregate(r.scoring, r.ensemble.Scoring)
	}
	var output interface{}
	switch {
	case r.ensemble.Output != nil:
		output = s.expander.Expand(r.ensemble.Output, expander.Scope(r.context))
	case len(r.ensemble.Flow) > 0:
		output = lastOutput
	default:
		output = map[string]interface{}{}
	}
	r.metrics.TotalDuration += clock.Now().Sub(started)

	result := &execution.Output{
		ExecutionID: r.id,
		Output:      output,
		Metrics:     r.metrics,
		Scoring:     r.scoring,
		Status:      execution.StatusCompleted,
	}
	if r.state != nil {
		result.StateReport = r.state.AccessReport()
	}
	s.trackComplete(ctx, r, output)
	return result, nil
}

func (s *Service) fail(ctx context.Context, r *run, started time.Time, failure error) (*execution.Output, error) {
	r.metrics.TotalDuration += clock.Now().Sub(started)
	s.trackFail(ctx, r, failure)
	return nil, failure
}

func (s *Service) trackStart(ctx context.Context, r *run) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Start(ctx, r.id, r.ensemble.Name, len(r.ensemble.Flow)); err != nil {
		s.logger.Debug("status tracking unavailable", "execution", r.id, "error", err)
	}
}

func (s *Service) trackSuspend(ctx context.Context, r *run) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Park(ctx, r.id); err != nil {
		s.logger.Debug("failed to park execution status", "execution", r.id, "error", err)
	}
}

func (s *Service) trackProgress(ctx context.Context, r *run, step string, index int, output interface{}) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Progress(ctx, r.id, step, index, output); err != nil {
		s.logger.Debug("failed to record progress", "execution", r.id, "error", err)
	}
}

func (s *Service) trackComplete(ctx context.Context, r *run, output interface{}) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Complete(ctx, r.id, output); err != nil {
		s.logger.Debug("failed to record completion", "execution", r.id, "error", err)
	}
}

func (s *Service) trackFail(ctx context.Context, r *run, failure error) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Fail(ctx, r.id, failure); err != nil {
		s.logger.Debug("failed to record failure", "execution", r.id, "error", err)
	}
}
