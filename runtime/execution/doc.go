// Package execution defines the data shapes threaded through an ensemble
// run: the execution context map, result output with metrics, and the
// suspended-execution snapshot.
package execution
