// Package logging wires a process-wide logging facility from a declarative
// YAML document.
//
// The document names formatters (output templates), handlers (console or
// size-rotating file sinks with their own level filter), and loggers
// (hierarchical record sources with level thresholds and propagation rules).
// Load/Apply either fully succeeds or fails without touching live wiring.
//
// Loggers are handed out as *slog.Logger and stay live across Apply, so a
// component can keep its logger while the configuration is swapped underneath.
package logging
