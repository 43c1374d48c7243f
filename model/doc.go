// Package model defines the declarative ensemble definition: the ordered
// flow of agent steps plus state, scoring and output configuration. The
// structures are produced by the parser and treated as immutable by the
// execution engine.
package model
