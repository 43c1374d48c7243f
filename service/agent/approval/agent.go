package approval

import (
	"context"

	"github.com/ensemblehq/conductor/service/agent"
)

const name = "approval"

// Agent is the human-in-the-loop gate. On first execution it suspends the
// ensemble with the step input as the review payload; when the execution is
// resumed at this step, the caller-supplied resume data becomes the step
// output.
type Agent struct{}

// New creates a new approval agent.
func New() *Agent {
	return &Agent{}
}

// Name returns the agent name.
func (a *Agent) Name() string {
	return name
}

// Execute suspends unless resume data is present.
func (a *Agent) Execute(_ context.Context, execCtx *agent.Context) (*agent.Response, error) {
	if execCtx.Resume != nil {
		return &agent.Response{Data: execCtx.Resume}, nil
	}
	return nil, agent.NewSuspendError("approval required", execCtx.Input)
}
