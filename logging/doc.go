// Package logging provides the engine's structured logger. It is a thin
// layer over log/slog with a tint handler so that components can share one
// logger via options or context without depending on a concrete backend.
package logging
