// Package logger provides structured logging for tinykv.
//
// It wraps log/slog with a process-wide level that can be changed at
// runtime, JSON or text output, connection-scoped context loggers and
// redaction of credentials and stored payloads.
package logger
