package obs

import (
	"context"
	"sync"
)

var (
	globalMu sync.RWMutex
	global   *Obs

	fallbackOnce sync.Once
	fallback     *Obs
)

// SetGlobal sets the global instance. Init calls it.
func SetGlobal(app *Obs) {
	globalMu.Lock()
	global = app
	globalMu.Unlock()
}

// L returns the global instance.
func L() *Obs {
	globalMu.RLock()
	g := global
	globalMu.RUnlock()
	if g == nil {
		panic("obs: global not set, call Init or SetGlobal first")
	}
	return g
}

// getGlobal returns the global instance, or a console-only fallback with
// the default configuration when none was set.
func getGlobal() *Obs {
	globalMu.RLock()
	g := global
	globalMu.RUnlock()
	if g != nil {
		return g
	}
	fallbackOnce.Do(func() {
		cfg := Default()
		fallback = &Obs{
			logger: newLogger(cfg, nil),
			instr:  DefaultInstrumentations(),
		}
	})
	return fallback
}

// Debug logs at debug level using global logger.
func Debug(ctx context.Context, msg string, fields ...Field) {
	getGlobal().Debug(ctx, msg, fields...)
}

// Info logs at info level using global logger.
func Info(ctx context.Context, msg string, fields ...Field) {
	getGlobal().Info(ctx, msg, fields...)
}

// Warn logs at warn level using global logger.
func Warn(ctx context.Context, msg string, fields ...Field) {
	getGlobal().Warn(ctx, msg, fields...)
}

// Error logs at error level using global logger.
func Error(ctx context.Context, msg string, err error, fields ...Field) {
	getGlobal().Error(ctx, msg, err, fields...)
}

// Critical logs at fatal level using global logger. It never exits.
func Critical(ctx context.Context, msg string, err error, fields ...Field) {
	getGlobal().Critical(ctx, msg, err, fields...)
}

// GetTracer returns a named tracer from the global instance.
func GetTracer(name string) Tracer {
	return getGlobal().Tracer(name)
}

// Sync flushes the global logger.
func Sync() error {
	globalMu.RLock()
	g := global
	globalMu.RUnlock()
	if g == nil {
		return nil
	}
	return g.Sync()
}

// Named returns a child logger from global.
func Named(name string) Logger {
	return getGlobal().Named(name)
}
