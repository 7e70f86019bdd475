// Package logging assembles structured slog loggers and formatting helpers
// used across scribe services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and defines the standardized attribute keys (session IDs, item
// IDs, backend names) components use to tag log lines. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape and routing guarantees as the rest of the
// system.
package logging
