package core

import "go.uber.org/zap/zapcore"

// levelEnforcer makes a wrapped core honour an external LevelEnabler.
// The otelzap core enables every level on its own, so without this the
// bridge would forward debug records regardless of LOG_OTEL_LEVEL.
type levelEnforcer struct {
	zapcore.Core
	level zapcore.LevelEnabler
}

func (l *levelEnforcer) Enabled(lvl zapcore.Level) bool {
	return l.level.Enabled(lvl)
}

func (l *levelEnforcer) With(fields []zapcore.Field) zapcore.Core {
	return &levelEnforcer{Core: l.Core.With(fields), level: l.level}
}

func (l *levelEnforcer) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !l.Enabled(ent.Level) {
		return ce
	}
	return ce.AddCore(ent, l)
}
