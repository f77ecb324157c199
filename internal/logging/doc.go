// Package logging assembles the structured slog loggers used across ingest.
//
// It owns the console and JSON handlers, level parsing and output routing,
// and a handful of attribute helpers so every component tags its lines with
// the same keys (component, session_id, event_type). A no-op logger is
// available for tests and for wiring code that has no logger to pass.
//
// Prefer these constructors over hand-rolled slog setup so new components
// produce lines with the same shape as the rest of the module.
package logging
