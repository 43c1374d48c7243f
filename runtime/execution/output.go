package execution

import (
	"time"

	"github.com/ensemblehq/conductor/model/scoring"
	"github.com/ensemblehq/conductor/model/state"
)

const (
	StatusCompleted = "completed"
	StatusSuspended = "suspended"
)

// AgentMetric records one step's execution.
type AgentMetric struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Cached   bool          `json:"cached"`
	Success  bool          `json:"success"`
}

// Metrics aggregates per-execution timing and cache data.
type Metrics struct {
	Ensemble      string        `json:"ensemble"`
	TotalDuration time.Duration `json:"totalDuration"`
	Agents        []AgentMetric `json:"agents,omitempty"`
	CacheHits     int           `json:"cacheHits"`
}

// Clone returns a deep copy of the metrics.
func (m *Metrics) Clone() *Metrics {
	if m == nil {
		return nil
	}
	ret := *m
	ret.Agents = append([]AgentMetric(nil), m.Agents...)
	return &ret
}

// Output is the result of a completed or suspended ensemble execution.
type Output struct {
	ExecutionID string              `json:"executionId"`
	Output      interface{}         `json:"output,omitempty"`
	Metrics     *Metrics            `json:"metrics,omitempty"`
	StateReport *state.AccessReport `json:"stateReport,omitempty"`
	Scoring     *scoring.State      `json:"scoring,omitempty"`
	Suspension  *Suspension         `json:"suspension,omitempty"`
	Status      string              `json:"status"`
}

// Suspension is the caller-facing handle for a parked execution.
type Suspension struct {
	Token   string      `json:"token"`
	Reason  string      `json:"reason,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}
