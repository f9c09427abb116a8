// Package logging assembles structured slog loggers and formatting helpers used
// across vidqueue services.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so workers and pipeline steps tag log
// lines with job IDs, step names, attempts, and correlation IDs. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
