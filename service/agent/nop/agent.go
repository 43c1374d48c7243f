package nop

import (
	"context"

	"github.com/ensemblehq/conductor/service/agent"
)

const name = "nop"

// Agent performs no operation and echoes its input back.
type Agent struct{}

// New creates a new nop agent.
func New() *Agent {
	return &Agent{}
}

// Name returns the agent name.
func (a *Agent) Name() string {
	return name
}

// Execute returns the input unchanged.
func (a *Agent) Execute(_ context.Context, execCtx *agent.Context) (*agent.Response, error) {
	return &agent.Response{Data: execCtx.Input}, nil
}
