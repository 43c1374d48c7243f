package agent

import (
	"context"
	"time"

	"github.com/ensemblehq/conductor/model/state"
)

// Context carries everything a single step invocation may consult: the
// resolved input, prior step outputs, a capability-gated state projection
// and the retry attempt number.
type Context struct {
	// ExecutionID identifies the enclosing ensemble run.
	ExecutionID string

	// Ensemble is the enclosing ensemble name.
	Ensemble string

	// Step is the step key the agent runs under.
	Step string

	// Attempt is 1-based; values above 1 indicate scoring retries.
	Attempt int

	// Input is the step's resolved input value.
	Input interface{}

	// Outputs holds prior step outputs keyed by step id or agent name.
	Outputs map[string]interface{}

	// State is the capability-gated projection, nil when the step declares
	// no state access.
	State *state.AgentState

	// Resume carries the caller-supplied resume data when this step is the
	// one a suspended execution restarts at, nil otherwise.
	Resume interface{}
}

// Response is what an agent hands back on success.
type Response struct {
	// Data is the agent's output, stored in the execution context.
	Data interface{} `json:"data,omitempty"`

	// Cached marks the response as served from the agent's own cache.
	Cached bool `json:"cached,omitempty"`

	// ExecutionTime is the agent-reported processing time.
	ExecutionTime time.Duration `json:"executionTime,omitempty"`
}

// Agent is a named unit of work composed into ensembles.
type Agent interface {
	Name() string

	Execute(ctx context.Context, execCtx *Context) (*Response, error)
}

// Versioned is implemented by agents that expose an explicit version,
// resolvable through "name@version" references.
type Versioned interface {
	Version() string
}
