// Package console is a leveled print API that writes to an original sink
// and mirrors every call into telemetry sinks.
//
// The original sink always runs first and its output is never suppressed.
// Telemetry sinks are additive: their errors and panics are swallowed and
// counted, so a broken exporter can never fail or block the print.
//
//	c := console.New()
//	c.AddSink(console.NewOTelSink(global.GetLoggerProvider(), "api"))
//	c.Info(ctx, "price lookup", map[string]any{"id": "flour"})
package console

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	otellog "go.opentelemetry.io/otel/log"
)

// Level is a console severity.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the uppercase severity text.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Severity maps l to the OpenTelemetry log severity number.
func (l Level) Severity() otellog.Severity {
	switch l {
	case LevelTrace:
		return otellog.SeverityTrace1
	case LevelDebug:
		return otellog.SeverityDebug1
	case LevelWarn:
		return otellog.SeverityWarn1
	case LevelError:
		return otellog.SeverityError1
	default:
		return otellog.SeverityInfo1
	}
}

// ParseLevel maps a conventional level name to a Level. "log" is an alias
// for info, "warning" for warn and "err" for error.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info", "log":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error", "err":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("console: unknown level %q", name)
}

// Entry is one console call.
type Entry struct {
	Time  time.Time
	Level Level
	Body  string
	Args  []any
}

// Sink receives console entries.
type Sink interface {
	Emit(ctx context.Context, e Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Entry) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, e Entry) error { return f(ctx, e) }

// Option configures a Console.
type Option func(*Console)

// WithOriginal replaces the original sink. Default: a WriterSink over
// stdout and stderr.
func WithOriginal(s Sink) Option {
	return func(c *Console) { c.original = s }
}

// WithSinks registers telemetry sinks at construction.
func WithSinks(sinks ...Sink) Option {
	return func(c *Console) { c.sinks = append(c.sinks, sinks...) }
}

// WithClock sets the time source for entries.
func WithClock(now func() time.Time) Option {
	return func(c *Console) { c.now = now }
}

// Console fans one call out to the original sink and the telemetry sinks.
// It is safe for concurrent use.
type Console struct {
	original Sink
	now      func() time.Time

	mu    sync.RWMutex
	sinks []Sink

	dropped atomic.Int64
}

// New creates a Console.
func New(opts ...Option) *Console {
	c := &Console{
		original: NewWriterSink(os.Stdout, os.Stderr),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddSink registers an additional telemetry sink.
func (c *Console) AddSink(s Sink) {
	if s == nil {
		return
	}
	c.mu.Lock()
	c.sinks = append(c.sinks, s)
	c.mu.Unlock()
}

// Dropped reports how many sink emissions failed or panicked.
func (c *Console) Dropped() int64 { return c.dropped.Load() }

func (c *Console) Trace(ctx context.Context, args ...any) { c.Log(ctx, LevelTrace, args...) }
func (c *Console) Debug(ctx context.Context, args ...any) { c.Log(ctx, LevelDebug, args...) }
func (c *Console) Info(ctx context.Context, args ...any) { c.Log(ctx, LevelInfo, args...) }
func (c *Console) Warn(ctx context.Context, args ...any) { c.Log(ctx, LevelWarn, args...) }
func (c *Console) Error(ctx context.Context, args ...any) { c.Log(ctx, LevelError, args...) }

// Log writes args to the original sink, then mirrors them to every
// telemetry sink.
func (c *Console) Log(ctx context.Context, level Level, args ...any) {
	if ctx == nil {
		ctx = context.Background()
	}
	e := Entry{
		Time:  c.now(),
		Level: level,
		Body:  FormatBody(args...),
		Args:  args,
	}
	if c.original != nil {
		_ = c.original.Emit(ctx, e)
	}
	c.Mirror(ctx, e)
}

// Mirror sends e to the telemetry sinks only. Front ends that already wrote
// their own output, such as a logrus hook, use it directly.
func (c *Console) Mirror(ctx context.Context, e Entry) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.RLock()
	sinks := c.sinks
	c.mu.RUnlock()

	for _, s := range sinks {
		c.emit(ctx, s, e)
	}
}

func (c *Console) emit(ctx context.Context, s Sink, e Entry) {
	defer func() {
		if r := recover(); r != nil {
			c.dropped.Add(1)
		}
	}()
	if err := s.Emit(ctx, e); err != nil {
		c.dropped.Add(1)
	}
}
