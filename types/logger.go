package types

// Logger defines methods for structured logging.
//
// Compatible with zap.SugaredLogger and log/slog style loggers: every method
// takes a message followed by alternating key/value pairs. Keys are snake_case
// strings such as "partition_key" or "owner_id".
type Logger interface {
	// Debug logs a message at debug level.
	Debug(msg string, keysAndValues ...any)

	// Info logs a message at info level.
	Info(msg string, keysAndValues ...any)

	// Warn logs a message at warn level.
	Warn(msg string, keysAndValues ...any)

	// Error logs a message at error level.
	Error(msg string, keysAndValues ...any)

	// Fatal logs a message and terminates the process.
	// Test and no-op implementations may choose not to exit.
	Fatal(msg string, keysAndValues ...any)
}
