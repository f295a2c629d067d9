package obs

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"time"

	"github.com/eli0shin/obs-playground/internal/config"
	"github.com/eli0shin/obs-playground/internal/core"
	otellog "go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger implements Logger using Uber's Zap.
type zapLogger struct {
	zap       *zap.Logger
	atomicLvl zap.AtomicLevel
}

// newLogger builds the zap logger. A nil lp disables the OTel bridge.
func newLogger(cfg config.Config, lp otellog.LoggerProvider) *zapLogger {
	res := core.NewZapLogger(cfg, lp)
	return &zapLogger{
		// Stack depth: User -> (*Obs).Info -> (*zapLogger).Info -> logWithFields.
		zap:       res.Logger.WithOptions(zap.AddCallerSkip(2)),
		atomicLvl: res.AtomicLevel,
	}
}

type zapLogFunc func(msg string, fields ...zap.Field)

// logWithFields converts fields through the pool, appends the context
// fields and the sentinel ctx for the otelzap bridge, then logs.
func (l *zapLogger) logWithFields(ctx context.Context, logFn zapLogFunc, msg string, err error, fields []Field) {
	zapFields := toZapFieldsTransient(fields)
	if zapFields == nil {
		zapFields = zapFieldPool.Get().(*[]zap.Field)
		*zapFields = (*zapFields)[:0]
	}
	if err != nil {
		*zapFields = append(*zapFields, zap.Error(err))
	}

	// context.Background() and context.TODO() never carry anything.
	if ctx != nil && ctx != context.Background() && ctx != context.TODO() {
		*zapFields = append(*zapFields, extractContextZapFields(ctx)...)
		*zapFields = append(*zapFields, zap.Reflect(core.SentinelKey, bridgeContext(ctx)))
	}

	logFn(msg, *zapFields...)
	putZapFields(zapFields)
}

// Debug logs a message at debug level.
func (l *zapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	if !l.zap.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	l.logWithFields(ctx, l.zap.Debug, msg, nil, fields)
}

// Info logs a message at info level.
func (l *zapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	if !l.zap.Core().Enabled(zapcore.InfoLevel) {
		return
	}
	l.logWithFields(ctx, l.zap.Info, msg, nil, fields)
}

// Warn logs a message at warn level.
func (l *zapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	if !l.zap.Core().Enabled(zapcore.WarnLevel) {
		return
	}
	l.logWithFields(ctx, l.zap.Warn, msg, nil, fields)
}

// Error logs a message at error level with an optional error.
func (l *zapLogger) Error(ctx context.Context, msg string, err error, fields ...Field) {
	if !l.zap.Core().Enabled(zapcore.ErrorLevel) {
		return
	}
	l.logWithFields(ctx, l.zap.Error, msg, err, fields)
}

// Critical logs at fatal level. The factory installs a no-exit fatal hook,
// so this writes "FATAL" and returns.
func (l *zapLogger) Critical(ctx context.Context, msg string, err error, fields ...Field) {
	l.logWithFields(ctx, l.zap.Fatal, msg, err, fields)
}

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{
		zap:       l.zap.With(toZapFields(fields)...),
		atomicLvl: l.atomicLvl,
	}
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{
		zap:       l.zap.Named(name),
		atomicLvl: l.atomicLvl,
	}
}

func (l *zapLogger) Sync() error {
	return ignoreSyncErr(l.zap.Sync())
}

func (l *zapLogger) Shutdown(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.Sync()
}

// SetLevel changes the log level at runtime. Unknown levels are ignored.
func (l *zapLogger) SetLevel(level string) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err == nil {
		l.atomicLvl.SetLevel(lvl)
	}
}

func (l *zapLogger) GetLevel() string {
	return l.atomicLvl.Level().String()
}

// ignoreSyncErr drops the errors fsync returns for terminals and pipes.
func ignoreSyncErr(err error) error {
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

// --- Field conversion ---

var zapFieldPool = sync.Pool{
	New: func() any {
		slice := make([]zap.Field, 0, 16)
		return &slice
	},
}

func convertField(f Field) zap.Field {
	switch f.Type {
	case StringType:
		return zap.String(f.Key, f.StringVal)
	case Int64Type:
		return zap.Int64(f.Key, f.Integer)
	case Uint64Type:
		return zap.Uint64(f.Key, f.Interface.(uint64))
	case Float64Type:
		return zap.Float64(f.Key, f.Float)
	case BoolType:
		return zap.Bool(f.Key, f.Integer == 1)
	case DurationType:
		return zap.Duration(f.Key, time.Duration(f.Integer))
	case ErrorType:
		if err, ok := f.Interface.(error); ok {
			return zap.NamedError(f.Key, err)
		}
		return zap.Any(f.Key, f.Interface)
	case StringerType:
		if s, ok := f.Interface.(interface{ String() string }); ok {
			return zap.Stringer(f.Key, s)
		}
		return zap.Any(f.Key, f.Interface)
	default:
		return zap.Any(f.Key, f.Interface)
	}
}

// toZapFieldsTransient converts fields into a pooled slice.
// The caller MUST return it with putZapFields. Not safe for With/Named.
func toZapFieldsTransient(fields []Field) *[]zap.Field {
	if len(fields) == 0 {
		return nil
	}

	ptr := zapFieldPool.Get().(*[]zap.Field)
	*ptr = (*ptr)[:0]

	for _, f := range fields {
		*ptr = append(*ptr, convertField(f))
	}
	return ptr
}

func putZapFields(ptr *[]zap.Field) {
	if ptr == nil {
		return
	}
	clear(*ptr)
	*ptr = (*ptr)[:0]
	zapFieldPool.Put(ptr)
}

// toZapFields converts fields into a new slice, for loggers that retain it.
func toZapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	zapFields := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zapFields = append(zapFields, convertField(f))
	}
	return zapFields
}
