// Package logging builds the slog loggers used by the mepipe CLI.
//
// It provides a human-oriented console handler that groups output by exam and
// scan, a JSON handler for batch-scheduler logs, TTY-based format detection,
// and tee output to both stdout and the mepipe log file. Attribute key
// constants keep field names consistent across packages.
package logging
