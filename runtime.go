package conductor

import (
	"context"
	"log/slog"

	"github.com/ensemblehq/conductor/model"
	"github.com/ensemblehq/conductor/runtime/execution"
	"github.com/ensemblehq/conductor/service/dao/ensemble"
	"github.com/ensemblehq/conductor/service/event"
	"github.com/ensemblehq/conductor/service/executor"
	"github.com/ensemblehq/conductor/service/notification"
	"github.com/ensemblehq/conductor/service/resumption"
	"github.com/ensemblehq/conductor/service/status"
)

// Runtime is the execution surface of the conductor service: load and run
// ensembles, resume suspended executions, observe live status.
type Runtime struct {
	parser       *ensemble.Service
	executor     *executor.Service
	tracker      *status.Tracker
	resumption   resumption.Service
	notification *notification.Service
	logger       *slog.Logger
}

// Start launches background collaborators (webhook delivery workers).
func (r *Runtime) Start(ctx context.Context) {
	r.notification.Start(ctx)
}

// Shutdown stops background collaborators and waits for in-flight work.
func (r *Runtime) Shutdown() {
	r.notification.Shutdown()
}

// LoadEnsemble loads and validates an ensemble definition from a URL.
func (r *Runtime) LoadEnsemble(ctx context.Context, URL string) (*model.Ensemble, error) {
	return r.parser.Load(ctx, URL)
}

// DecodeEnsemble decodes and validates an ensemble definition from YAML.
func (r *Runtime) DecodeEnsemble(data []byte) (*model.Ensemble, error) {
	return r.parser.DecodeYAML(data)
}

// Execute runs an ensemble to completion or suspension.
func (r *Runtime) Execute(ctx context.Context, definition *model.Ensemble, input interface{}) (*execution.Output, error) {
	output, err := r.executor.Execute(ctx, definition, input)
	r.notify(ctx, definition.Name, output, err)
	return output, err
}

// RunEnsemble loads an ensemble from URL and executes it.
func (r *Runtime) RunEnsemble(ctx context.Context, URL string, input interface{}) (*execution.Output, error) {
	definition, err := r.LoadEnsemble(ctx, URL)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, definition, input)
}

// Resume consumes a one-time token and continues a suspended execution.
func (r *Runtime) Resume(ctx context.Context, token string, resumeInput map[string]interface{}) (*execution.Output, error) {
	output, err := r.executor.Resume(ctx, token, resumeInput)
	name := ""
	if output != nil && output.Metrics != nil {
		name = output.Metrics.Ensemble
	}
	r.notify(ctx, name, output, err)
	return output, err
}

// Subscribe attaches to an execution's live event stream.
func (r *Runtime) Subscribe(ctx context.Context, executionID string) (*status.Record, <-chan status.Event, error) {
	return r.tracker.Subscribe(ctx, executionID)
}

// Status returns the current tracked state of an execution.
func (r *Runtime) Status(ctx context.Context, executionID string) (*status.Record, error) {
	return r.tracker.Status(ctx, executionID)
}

// Executions lists tracked executions, filtered to the given states when any
// are supplied.
func (r *Runtime) Executions(ctx context.Context, states ...status.State) ([]*status.Record, error) {
	return r.tracker.List(ctx, states...)
}

// PendingResumptions lists outstanding resume tokens.
func (r *Runtime) PendingResumptions(ctx context.Context) ([]string, error) {
	return r.resumption.Pending(ctx)
}

// RegisterWebhook adds a URL notified when executions finish or suspend.
func (r *Runtime) RegisterWebhook(URL string) {
	r.notification.RegisterWebhook(URL)
}

func (r *Runtime) notify(ctx context.Context, name string, output *execution.Output, failure error) {
	var payload notification.ExecEvent
	eventCtx := &event.Context{Ensemble: name}
	switch {
	case failure != nil:
		payload = notification.ExecEvent{Status: "failed", Detail: failure.Error()}
		eventCtx.EventType = "execution.failed"
	case output != nil && output.Suspension != nil:
		payload = notification.ExecEvent{Status: output.Status, Detail: output.Suspension}
		eventCtx.EventType = "execution.suspended"
		eventCtx.ExecutionID = output.ExecutionID
	case output != nil:
		payload = notification.ExecEvent{Status: output.Status, Detail: output.Output}
		eventCtx.EventType = "execution.completed"
		eventCtx.ExecutionID = output.ExecutionID
	default:
		return
	}
	if err := r.notification.Publish(ctx, event.NewEvent(eventCtx, payload)); err != nil {
		r.logger.Warn("failed to enqueue execution notification", "ensemble", name, "error", err)
	}
}
