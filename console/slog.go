package console

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// SlogHandler writes records to a wrapped handler, then mirrors them into
// a Console's telemetry sinks.
type SlogHandler struct {
	next    slog.Handler
	console *Console
	attrs   []slog.Attr
	groups  []string
}

// NewSlogHandler creates a handler in front of next. A nil next only
// mirrors.
func NewSlogHandler(next slog.Handler, c *Console) *SlogHandler {
	return &SlogHandler{next: next, console: c}
}

// Enabled follows the wrapped handler, so only records that are printed
// are mirrored.
func (h *SlogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.next == nil {
		return true
	}
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *SlogHandler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	if h.next != nil {
		err = h.next.Handle(ctx, record)
	}

	fields := make(map[string]any, len(h.attrs)+record.NumAttrs())
	for _, a := range h.attrs {
		addAttr(fields, "", a)
	}
	prefix := strings.Join(h.groups, ".")
	record.Attrs(func(a slog.Attr) bool {
		addAttr(fields, prefix, a)
		return true
	})

	body := record.Message
	if len(fields) > 0 {
		if data, jerr := json.Marshal(fields); jerr == nil {
			body += " " + string(data)
		}
	}
	h.console.Mirror(ctx, Entry{
		Time:  record.Time,
		Level: fromSlog(record.Level),
		Body:  body,
		Args:  []any{record.Message},
	})
	return err
}

// WithAttrs implements slog.Handler.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	prefix := strings.Join(h.groups, ".")
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return clone
}

// WithGroup implements slog.Handler.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return clone
}

func (h *SlogHandler) clone() *SlogHandler {
	return &SlogHandler{
		next:    h.next,
		console: h.console,
		attrs:   append([]slog.Attr(nil), h.attrs...),
		groups:  append([]string(nil), h.groups...),
	}
}

func addAttr(fields map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(fields, key, ga)
		}
		return
	}
	v := a.Value.Any()
	if err, ok := v.(error); ok {
		v = err.Error()
	}
	fields[key] = v
}

func fromSlog(l slog.Level) Level {
	switch {
	case l < slog.LevelDebug:
		return LevelTrace
	case l < slog.LevelInfo:
		return LevelDebug
	case l < slog.LevelWarn:
		return LevelInfo
	case l < slog.LevelError:
		return LevelWarn
	default:
		return LevelError
	}
}
