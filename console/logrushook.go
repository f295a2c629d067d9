package console

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// LogrusHook mirrors logrus entries into a Console's telemetry sinks.
// logrus keeps writing its own output; the hook only adds records.
type LogrusHook struct {
	console *Console
}

// NewLogrusHook creates a hook for c.
func NewLogrusHook(c *Console) *LogrusHook {
	return &LogrusHook{console: c}
}

// Levels implements logrus.Hook.
func (h *LogrusHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook. Entry fields are appended to the body as a
// JSON object. The entry context, set with WithContext, selects the span.
func (h *LogrusHook) Fire(entry *logrus.Entry) error {
	body := entry.Message
	if len(entry.Data) > 0 {
		if data, err := json.Marshal(fieldsForJSON(entry.Data)); err == nil {
			body += " " + string(data)
		}
	}
	h.console.Mirror(entry.Context, Entry{
		Time:  entry.Time,
		Level: fromLogrus(entry.Level),
		Body:  body,
		Args:  []any{entry.Message},
	})
	return nil
}

// fieldsForJSON replaces error values, which encode as {}, with their text.
func fieldsForJSON(data logrus.Fields) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if err, ok := v.(error); ok {
			out[k] = err.Error()
			continue
		}
		out[k] = v
	}
	return out
}

func fromLogrus(l logrus.Level) Level {
	switch l {
	case logrus.TraceLevel:
		return LevelTrace
	case logrus.DebugLevel:
		return LevelDebug
	case logrus.InfoLevel:
		return LevelInfo
	case logrus.WarnLevel:
		return LevelWarn
	default:
		return LevelError
	}
}
