// Package agent defines the unit of work ensembles compose: the Agent
// contract, the per-invocation execution context, the resolution registry
// and the suspension signal for human-in-the-loop steps.
package agent
