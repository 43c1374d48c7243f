package model

import (
	"fmt"
	"strings"
	"time"
)

// Backoff policy names accepted by scoring retry configuration.
const (
	BackoffFixed       = "fixed"
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// Aggregation method names accepted by ensemble scoring configuration.
const (
	AggregationWeightedAverage = "weighted_average"
	AggregationMinimum         = "minimum"
	AggregationGeometricMean   = "geometric_mean"
)

// Ensemble represents a named declarative workflow definition. It is
// immutable once parsed; the executor never mutates it.
type Ensemble struct {
	// Source provides information about the origin of the ensemble
	Source *Source `json:"source,omitempty" yaml:"source,omitempty"`

	// Name is the unique identifier for the ensemble
	Name string `json:"name" yaml:"name"`

	// Description provides a human-readable description of the ensemble
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Version specifies the ensemble version
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Flow defines the ordered sequential steps of the ensemble
	Flow []*Step `json:"flow" yaml:"flow"`

	// State declares the shared state schema and its initial values
	State *StateConfig `json:"state,omitempty" yaml:"state,omitempty"`

	// Scoring enables and configures the quality gate defaults
	Scoring *ScoringConfig `json:"scoring,omitempty" yaml:"scoring,omitempty"`

	// Output is an optional template expression resolved against the full
	// execution context once the flow completes. When absent the last
	// step's output becomes the ensemble output.
	Output interface{} `json:"output,omitempty" yaml:"output,omitempty"`
}

// Step is one node in the sequential flow.
type Step struct {
	// ID identifies the step inside the execution context; defaults to the
	// agent name when empty.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Agent references the agent to invoke, either "name" or "name@version".
	Agent string `json:"agent" yaml:"agent"`

	// Input is an optional template expression; when empty the previous
	// step's output (or the ensemble input for the first step) is used.
	Input interface{} `json:"input,omitempty" yaml:"input,omitempty"`

	// State declares the step's readable and writable state keys.
	State *StateDeclaration `json:"state,omitempty" yaml:"state,omitempty"`

	// Scoring overrides the ensemble-level scoring gate for this step.
	Scoring *StepScoring `json:"scoring,omitempty" yaml:"scoring,omitempty"`

	// Timeout bounds the agent call, e.g. "45s". Empty means the executor
	// default.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Key returns the identifier under which the step's output is stored in the
// execution context.
func (s *Step) Key() string {
	if s.ID != "" {
		return s.ID
	}
	return s.AgentName()
}

// AgentName returns the agent reference without a version suffix.
func (s *Step) AgentName() string {
	if idx := strings.Index(s.Agent, "@"); idx != -1 {
		return s.Agent[:idx]
	}
	return s.Agent
}

// TimeoutDuration parses the step timeout; zero when unset.
func (s *Step) TimeoutDuration() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(s.Timeout)
}

// StateConfig declares the ensemble's shared state.
type StateConfig struct {
	// Schema maps state keys to descriptive type names; informational only.
	Schema map[string]string `json:"schema,omitempty" yaml:"schema,omitempty"`

	// Initial holds the values the state manager starts with.
	Initial map[string]interface{} `json:"initial,omitempty" yaml:"initial,omitempty"`
}

// StateDeclaration is the per-step capability allow-list over state keys.
type StateDeclaration struct {
	// Use lists keys the step may read.
	Use []string `json:"use,omitempty" yaml:"use,omitempty"`

	// Set lists keys the step may write.
	Set []string `json:"set,omitempty" yaml:"set,omitempty"`
}

// Thresholds holds scoring pass criteria.
type Thresholds struct {
	Minimum float64 `json:"minimum" yaml:"minimum"`
	Target  float64 `json:"target,omitempty" yaml:"target,omitempty"`
}

// BackoffConfig controls the delay between scoring retry attempts.
type BackoffConfig struct {
	// Type is one of fixed, linear or exponential.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Delay is the base delay, e.g. "500ms".
	Delay string `json:"delay,omitempty" yaml:"delay,omitempty"`

	// MaxDelay caps the computed delay, e.g. "30s".
	MaxDelay string `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
}

// DelayDuration returns the parsed base delay, defaulting to one second.
func (b *BackoffConfig) DelayDuration() time.Duration {
	if b == nil || b.Delay == "" {
		return time.Second
	}
	delay, err := time.ParseDuration(b.Delay)
	if err != nil {
		return time.Second
	}
	return delay
}

// MaxDelayDuration returns the parsed delay cap, zero when unset.
func (b *BackoffConfig) MaxDelayDuration() time.Duration {
	if b == nil || b.MaxDelay == "" {
		return 0
	}
	max, err := time.ParseDuration(b.MaxDelay)
	if err != nil {
		return 0
	}
	return max
}

// ScoringConfig holds ensemble-level scoring defaults.
type ScoringConfig struct {
	Enabled    bool               `json:"enabled" yaml:"enabled"`
	Thresholds *Thresholds        `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	MaxRetries int                `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	Backoff    *BackoffConfig     `json:"backoff,omitempty" yaml:"backoff,omitempty"`
	Method     string             `json:"method,omitempty" yaml:"method,omitempty"`
	Weights    map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
}

// StepScoring overrides scoring for a single step.
type StepScoring struct {
	// Evaluator names the registered evaluator invoked against the step's
	// output.
	Evaluator string `json:"evaluator" yaml:"evaluator"`

	Thresholds *Thresholds    `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	MaxRetries *int           `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	Backoff    *BackoffConfig `json:"backoff,omitempty" yaml:"backoff,omitempty"`
}

type Source struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Validate performs a best-effort structural validation of the ensemble. The
// returned slice is empty when the definition is sound; otherwise it contains
// human-readable error descriptions. The function does not resolve any
// template expressions, it only verifies static properties.
func (e *Ensemble) Validate() []error {
	var issues []error

	if strings.TrimSpace(e.Name) == "" {
		issues = append(issues, fmt.Errorf("ensemble name is required"))
	}

	seen := map[string]bool{}
	for i, step := range e.Flow {
		if step == nil {
			issues = append(issues, fmt.Errorf("flow[%d] is nil", i))
			continue
		}
		if strings.TrimSpace(step.Agent) == "" {
			issues = append(issues, fmt.Errorf("flow[%d] is missing an agent reference", i))
		}
		if step.ID != "" {
			if seen[step.ID] {
				issues = append(issues, fmt.Errorf("duplicate step id %s", step.ID))
			}
			seen[step.ID] = true
		}
		if _, err := step.TimeoutDuration(); err != nil {
			issues = append(issues, fmt.Errorf("flow[%d] has invalid timeout: %v", i, err))
		}
		if step.Scoring != nil {
			issues = append(issues, validateStepScoring(i, step.Scoring)...)
		}
		if step.State != nil {
			issues = append(issues, e.validateStateDeclaration(i, step.State)...)
		}
	}

	if e.Scoring != nil {
		issues = append(issues, validateScoringConfig(e.Scoring)...)
	}

	return issues
}

func validateStepScoring(index int, s *StepScoring) []error {
	var issues []error
	if strings.TrimSpace(s.Evaluator) == "" {
		issues = append(issues, fmt.Errorf("flow[%d].scoring requires an evaluator", index))
	}
	if s.Thresholds != nil && (s.Thresholds.Minimum < 0 || s.Thresholds.Minimum > 1) {
		issues = append(issues, fmt.Errorf("flow[%d].scoring.thresholds.minimum must be within [0,1]", index))
	}
	if s.MaxRetries != nil && *s.MaxRetries < 0 {
		issues = append(issues, fmt.Errorf("flow[%d].scoring.maxRetries must be >= 0", index))
	}
	if s.Backoff != nil {
		issues = append(issues, validateBackoff(fmt.Sprintf("flow[%d].scoring", index), s.Backoff)...)
	}
	return issues
}

func validateScoringConfig(s *ScoringConfig) []error {
	var issues []error
	if s.Thresholds != nil && (s.Thresholds.Minimum < 0 || s.Thresholds.Minimum > 1) {
		issues = append(issues, fmt.Errorf("scoring.thresholds.minimum must be within [0,1]"))
	}
	if s.MaxRetries < 0 {
		issues = append(issues, fmt.Errorf("scoring.maxRetries must be >= 0"))
	}
	switch s.Method {
	case "", AggregationWeightedAverage, AggregationMinimum, AggregationGeometricMean:
	default:
		issues = append(issues, fmt.Errorf("scoring.method %q is not supported", s.Method))
	}
	if s.Backoff != nil {
		issues = append(issues, validateBackoff("scoring", s.Backoff)...)
	}
	return issues
}

func validateBackoff(prefix string, b *BackoffConfig) []error {
	var issues []error
	switch b.Type {
	case "", BackoffFixed, BackoffLinear, BackoffExponential:
	default:
		issues = append(issues, fmt.Errorf("%s.backoff.type %q is not supported", prefix, b.Type))
	}
	if b.Delay != "" {
		if _, err := time.ParseDuration(b.Delay); err != nil {
			issues = append(issues, fmt.Errorf("%s.backoff.delay is invalid: %v", prefix, err))
		}
	}
	if b.MaxDelay != "" {
		if _, err := time.ParseDuration(b.MaxDelay); err != nil {
			issues = append(issues, fmt.Errorf("%s.backoff.maxDelay is invalid: %v", prefix, err))
		}
	}
	return issues
}

func (e *Ensemble) validateStateDeclaration(index int, decl *StateDeclaration) []error {
	if e.State == nil || len(e.State.Schema) == 0 {
		return nil
	}
	var issues []error
	for _, key := range append(append([]string{}, decl.Use...), decl.Set...) {
		if _, ok := e.State.Schema[key]; !ok {
			issues = append(issues, fmt.Errorf("flow[%d] declares unknown state key %s", index, key))
		}
	}
	return issues
}

// NewEnsemble creates a new ensemble with the given name.
func NewEnsemble(name string) *Ensemble {
	return &Ensemble{Name: name}
}

// WithVersion sets the ensemble version.
func (e *Ensemble) WithVersion(version string) *Ensemble {
	e.Version = version
	return e
}

// NewStep appends a step invoking the named agent and returns it.
func (e *Ensemble) NewStep(agent string) *Step {
	step := &Step{Agent: agent}
	e.Flow = append(e.Flow, step)
	return step
}

// Clone creates a deep copy of the ensemble.
func (e *Ensemble) Clone() *Ensemble {
	if e == nil {
		return nil
	}
	clone := &Ensemble{
		Name:        e.Name,
		Description: e.Description,
		Version:     e.Version,
		Output:      e.Output,
	}
	if e.Source != nil {
		src := *e.Source
		clone.Source = &src
	}
	if e.Flow != nil {
		clone.Flow = make([]*Step, len(e.Flow))
		for i, step := range e.Flow {
			clone.Flow[i] = step.Clone()
		}
	}
	if e.State != nil {
		clone.State = e.State.Clone()
	}
	if e.Scoring != nil {
		clone.Scoring = e.Scoring.Clone()
	}
	return clone
}

// Clone creates a deep copy of the step.
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	clone := *s
	if s.State != nil {
		decl := StateDeclaration{
			Use: append([]string(nil), s.State.Use...),
			Set: append([]string(nil), s.State.Set...),
		}
		clone.State = &decl
	}
	if s.Scoring != nil {
		scoring := *s.Scoring
		if s.Scoring.Thresholds != nil {
			thresholds := *s.Scoring.Thresholds
			scoring.Thresholds = &thresholds
		}
		if s.Scoring.MaxRetries != nil {
			retries := *s.Scoring.MaxRetries
			scoring.MaxRetries = &retries
		}
		clone.Scoring = &scoring
	}
	return &clone
}

// Clone creates a deep copy of the state configuration.
func (c *StateConfig) Clone() *StateConfig {
	if c == nil {
		return nil
	}
	clone := &StateConfig{}
	if c.Schema != nil {
		clone.Schema = make(map[string]string, len(c.Schema))
		for k, v := range c.Schema {
			clone.Schema[k] = v
		}
	}
	if c.Initial != nil {
		clone.Initial = make(map[string]interface{}, len(c.Initial))
		for k, v := range c.Initial {
			clone.Initial[k] = v
		}
	}
	return clone
}

// Clone creates a deep copy of the scoring configuration.
func (c *ScoringConfig) Clone() *ScoringConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Thresholds != nil {
		thresholds := *c.Thresholds
		clone.Thresholds = &thresholds
	}
	if c.Backoff != nil {
		backoff := *c.Backoff
		clone.Backoff = &backoff
	}
	if c.Weights != nil {
		clone.Weights = make(map[string]float64, len(c.Weights))
		for k, v := range c.Weights {
			clone.Weights[k] = v
		}
	}
	return &clone
}
