// Package logging assembles structured slog loggers and formatting helpers used
// across barscan components.
//
// It owns the configurable console/JSON handlers and centralizes level and
// output plumbing. Standard field keys keep the camera, decode, and session
// components emitting data with the same shape, and a no-op logger is provided
// for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup.
package logging
