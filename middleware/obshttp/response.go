package obshttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eli0shin/obs-playground/flatten"
	"github.com/eli0shin/obs-playground/obsctx"
)

// MaxInspectedBody is the largest error body Responses will parse.
const MaxInspectedBody = 64 << 10

// ErrorDetailsEvent is the span event added per entry of an "errors" array.
const ErrorDetailsEvent = "error_details"

// Responses inspects error responses and annotates the active span.
//
// Once next returns with a status of 400 or above, the JSON body is parsed.
// A string "message" field, or failing that a string "error" field, is
// recorded as an exception and sets the span status to Error. Each entry of
// an "errors" array becomes an error_details event whose attributes are the
// flattened entry. Bodies that are not JSON objects, or that exceed
// MaxInspectedBody, are ignored.
func Responses(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capture := &bodyCapture{status: http.StatusOK}
		ww := httpsnoop.Wrap(w, capture.hooks())

		next.ServeHTTP(ww, r)

		if capture.status < http.StatusBadRequest || capture.overflow {
			return
		}
		inspect(obsctx.ActiveSpan(r.Context()), capture.body.Bytes())
	})
}

type bodyCapture struct {
	status      int
	wroteHeader bool
	body        bytes.Buffer
	overflow    bool
}

func (c *bodyCapture) hooks() httpsnoop.Hooks {
	return httpsnoop.Hooks{
		WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
			return func(code int) {
				if !c.wroteHeader {
					c.status = code
					c.wroteHeader = true
				}
				next(code)
			}
		},
		Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
			return func(b []byte) (int, error) {
				c.wroteHeader = true
				c.keep(b)
				return next(b)
			}
		},
		ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
			return func(src io.Reader) (int64, error) {
				c.wroteHeader = true
				if c.status >= http.StatusBadRequest {
					src = io.TeeReader(src, writerFunc(func(b []byte) (int, error) {
						c.keep(b)
						return len(b), nil
					}))
				}
				return next(src)
			}
		},
	}
}

func (c *bodyCapture) keep(b []byte) {
	if c.status < http.StatusBadRequest || c.overflow {
		return
	}
	if c.body.Len()+len(b) > MaxInspectedBody {
		c.overflow = true
		c.body.Reset()
		return
	}
	c.body.Write(b)
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) { return f(b) }

func inspect(span trace.Span, body []byte) {
	defer func() { _ = recover() }()

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return
	}

	msg, _ := payload["message"].(string)
	if msg == "" {
		msg, _ = payload["error"].(string)
	}
	if msg != "" {
		span.RecordError(errors.New(msg))
		span.SetStatus(codes.Error, msg)
	}

	entries, ok := payload["errors"].([]any)
	if !ok {
		return
	}
	for _, entry := range entries {
		var attrs []attribute.KeyValue
		if obj, ok := entry.(map[string]any); ok {
			attrs = flatten.Attributes(flatten.Paths(obj, ""))
		} else {
			attrs = flatten.Attributes(map[string]any{"error": entry})
		}
		span.AddEvent(ErrorDetailsEvent, trace.WithAttributes(attrs...))
	}
}
