package executor

import "fmt"

// ConfigurationError reports an invalid ensemble definition or a missing
// collaborator, detected before any step runs.
type ConfigurationError struct {
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid configuration: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// AgentExecutionError reports a step whose agent call failed or timed out.
// It aborts the ensemble; no further steps execute.
type AgentExecutionError struct {
	Agent string
	Step  string
	Cause error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("agent %v failed at step %v: %v", e.Agent, e.Step, e.Cause)
}

func (e *AgentExecutionError) Unwrap() error {
	return e.Cause
}

// EnsembleExecutionError wraps any failure that aborts an ensemble run.
type EnsembleExecutionError struct {
	Ensemble string
	Cause    error
}

func (e *EnsembleExecutionError) Error() string {
	return fmt.Sprintf("ensemble %v failed: %v", e.Ensemble, e.Cause)
}

func (e *EnsembleExecutionError) Unwrap() error {
	return e.Cause
}
