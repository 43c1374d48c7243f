// Package state implements the per-execution shared state container. The
// container enforces a capability model (each step declares which keys it
// may read and write) and is strictly copy-on-write: every mutation yields
// a new Manager while earlier instances stay unchanged.
package state
