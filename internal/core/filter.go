// Package core builds the zap logger, the exporter registry and the
// OpenTelemetry providers behind the public obs package.
package core

import "go.uber.org/zap/zapcore"

// filteringCore drops fields with reserved keys before they reach the
// wrapped core.
type filteringCore struct {
	zapcore.Core
	drop map[string]struct{}
}

// NewFilteringCore wraps core so that fields named by keys are never written.
func NewFilteringCore(core zapcore.Core, keys ...string) zapcore.Core {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	return &filteringCore{Core: core, drop: drop}
}

func (c *filteringCore) With(fields []zapcore.Field) zapcore.Core {
	return &filteringCore{Core: c.Core.With(c.filter(fields)), drop: c.drop}
}

func (c *filteringCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) {
		return ce
	}
	return ce.AddCore(ent, c)
}

func (c *filteringCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, c.filter(fields))
}

func (c *filteringCore) filter(fields []zapcore.Field) []zapcore.Field {
	out := fields[:0:0]
	for _, f := range fields {
		if _, ok := c.drop[f.Key]; !ok {
			out = append(out, f)
		}
	}
	return out
}
