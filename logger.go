package obs

import (
	"context"
)

// Logger is the primary logging interface.
// All methods are safe for concurrent use.
//
// Every method takes the request context first: trace_id and span_id come
// from the span it carries (or from its operation span), request_id and
// user_id from WithRequestID / WithUserID. The context also reaches the
// OTel log bridge, so exported records are correlated with the trace.
type Logger interface {
	// Debug logs a message at debug level.
	Debug(ctx context.Context, msg string, fields ...Field)

	// Info logs a message at info level.
	Info(ctx context.Context, msg string, fields ...Field)

	// Warn logs a message at warn level.
	Warn(ctx context.Context, msg string, fields ...Field)

	// Error logs a message at error level with an error.
	Error(ctx context.Context, msg string, err error, fields ...Field)

	// Critical logs a message at fatal level. It never exits the process.
	Critical(ctx context.Context, msg string, err error, fields ...Field)

	// With returns a child logger with additional fields attached.
	With(fields ...Field) Logger

	// Named returns a named sub-logger.
	Named(name string) Logger

	// Sync flushes any buffered log entries.
	Sync() error

	// Shutdown flushes the logger. Telemetry providers are owned by Obs.
	Shutdown(ctx context.Context) error

	// SetLevel changes the log level at runtime.
	// Valid levels: debug, info, warn, error, fatal.
	SetLevel(level string)

	// GetLevel returns the current log level as a string.
	GetLevel() string
}
