package obshttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/eli0shin/obs-playground/obsctx"
)

// RequestIDHeader carries the request ID in and out.
const RequestIDHeader = "X-Request-ID"

// PanicError wraps a value recovered from a handler panic.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	switch v := e.Value.(type) {
	case error:
		return v.Error()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (e PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Recover turns handler panics into 500 responses. The panic is recorded as
// an exception on the active span, which gets an Error status, and the
// client receives {"error": "<message>"}, or "Internal server error" when
// the message is empty. http.ErrAbortHandler is re-panicked.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			perr := PanicError{Value: rec}
			span := obsctx.ActiveSpan(r.Context())
			span.RecordError(perr)
			span.SetStatus(codes.Error, perr.Error())

			WriteError(w, http.StatusInternalServerError, perr.Error())
		}()
		next.ServeHTTP(w, r)
	})
}

// WriteError writes {"error": msg} with status. An empty msg becomes
// "Internal server error".
func WriteError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = "Internal server error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// RequestID reuses the incoming X-Request-ID or generates one, stores it on
// the request context and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(obsctx.WithRequestID(r.Context(), id)))
	})
}
