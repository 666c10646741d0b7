// Package logger builds the gateway's structured slog loggers: text output
// for local runs, JSON in production, and a component attribute per
// subsystem.
package logger
