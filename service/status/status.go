package status

import (
	"time"
)

// State is the lifecycle state of a tracked execution.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Event types appended to an execution's ordered event log.
const (
	EventStarted   = "started"
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
)

// Event is one entry of an execution's event log, pushed to subscribers as
// it happens.
type Event struct {
	Type   string      `json:"type"`
	Step   string      `json:"step,omitempty"`
	Index  int         `json:"index,omitempty"`
	Output interface{} `json:"output,omitempty"`
	Error  string      `json:"error,omitempty"`
	At     time.Time   `json:"at"`
}

// Record is the full tracked state of one execution.
type Record struct {
	ID             string      `json:"id"`
	Ensemble       string      `json:"ensemble"`
	State          State       `json:"state"`
	TotalSteps     int         `json:"totalSteps"`
	CompletedSteps int         `json:"completedSteps"`
	Output         interface{} `json:"output,omitempty"`
	Error          string      `json:"error,omitempty"`
	Events         []Event     `json:"events"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Clone returns a deep enough copy for handing snapshots to subscribers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	ret := *r
	ret.Events = append([]Event(nil), r.Events...)
	return &ret
}
