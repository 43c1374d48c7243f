package execution

import (
	"time"

	"github.com/ensemblehq/conductor/model"
	"github.com/ensemblehq/conductor/model/scoring"
	"github.com/ensemblehq/conductor/model/state"
)

// Suspended is the serializable snapshot of a parked execution: everything
// needed to re-enter the step loop at ResumeFromStep and produce the same
// final output an uninterrupted run would have.
type Suspended struct {
	ExecutionID    string                 `json:"executionId"`
	Ensemble       *model.Ensemble        `json:"ensemble"`
	Context        Context                `json:"executionContext"`
	State          map[string]interface{} `json:"stateSnapshot,omitempty"`
	StateAccessLog []state.Access         `json:"stateAccessLog,omitempty"`
	Scoring        *scoring.State         `json:"scoringSnapshot,omitempty"`
	Metrics        *Metrics               `json:"metrics"`
	ResumeFromStep int                    `json:"resumeFromStep"`
	SuspendedAt    time.Time              `json:"suspendedAt"`
	Reason         string                 `json:"reason,omitempty"`
}
