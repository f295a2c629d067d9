// Package obsgraphql wraps a GraphQL-over-HTTP endpoint with an operation
// span.
//
// The span is stored as the operation span on the request context, so
// resolvers, data loaders and the goroutines they start can enrich it with
// obsctx.OperationSpan without having it passed down:
//
//	http.Handle("/graphql", obsgraphql.Handler(schemaHandler))
//
//	func resolveRecipe(ctx context.Context, id string) (*Recipe, error) {
//		if span, ok := obsctx.OperationSpan(ctx); ok {
//			span.SetAttributes(attribute.String("recipe.id", id))
//		}
//		...
//	}
package obsgraphql

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eli0shin/obs-playground/flatten"
	"github.com/eli0shin/obs-playground/obsctx"
)

const (
	// SpanPrefix starts every operation span name.
	SpanPrefix = "graphql.execute"

	instrumentationName = "github.com/eli0shin/obs-playground/middleware/obsgraphql"

	maxRequestBody  = 1 << 20
	maxResponseBody = 1 << 20
)

// Attribute keys set on the operation span.
const (
	OperationNameKey = attribute.Key("graphql.operation.name")
	OperationTypeKey = attribute.Key("graphql.operation.type")
	DocumentKey      = attribute.Key("graphql.document")
)

type options struct {
	tracerProvider    trace.TracerProvider
	maxDocumentLength int
}

// Option configures the GraphQL handler.
type Option func(*options)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMaxDocumentLength caps the graphql.document attribute. Default: 1024.
func WithMaxDocumentLength(n int) Option {
	return func(o *options) { o.maxDocumentLength = n }
}

type request struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName"`
}

type response struct {
	Errors []map[string]any `json:"errors"`
}

// Handler starts a "graphql.execute <operationName>" span around next and
// records every entry of the response's errors array as an exception on
// it. The span status is set to Error with the first error message.
// Requests and responses that cannot be parsed are passed through
// untouched.
func Handler(next http.Handler, opts ...Option) http.Handler {
	o := &options{maxDocumentLength: 1024}
	for _, opt := range opts {
		opt(o)
	}
	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(instrumentationName)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := readRequest(r)

		name := SpanPrefix
		if req.OperationName != "" {
			name += " " + req.OperationName
		}
		attrs := []attribute.KeyValue{OperationTypeKey.String(operationType(req.Query))}
		if req.OperationName != "" {
			attrs = append(attrs, OperationNameKey.String(req.OperationName))
		}
		if req.Query != "" {
			attrs = append(attrs, DocumentKey.String(truncate(req.Query, o.maxDocumentLength)))
		}

		ctx, span := tracer.Start(r.Context(), name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()
		ctx = obsctx.WithOperationSpan(ctx, span)

		var body bytes.Buffer
		ww := httpsnoop.Wrap(w, httpsnoop.Hooks{
			Write: func(write httpsnoop.WriteFunc) httpsnoop.WriteFunc {
				return func(b []byte) (int, error) {
					if body.Len()+len(b) <= maxResponseBody {
						body.Write(b)
					}
					return write(b)
				}
			},
		})

		next.ServeHTTP(ww, r.WithContext(ctx))
		recordErrors(span, body.Bytes())
	})
}

// readRequest extracts query and operationName from a POST JSON body or GET
// parameters. At most maxRequestBody bytes are read; the next handler
// sees the full, unchanged body.
func readRequest(r *http.Request) request {
	var req request
	if r.Method == http.MethodGet {
		req.Query = r.URL.Query().Get("query")
		req.OperationName = r.URL.Query().Get("operationName")
		return req
	}
	if r.Body == nil || r.Body == http.NoBody {
		return req
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	r.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(data), r.Body), Closer: r.Body}
	if err != nil || len(data) == maxRequestBody {
		return req
	}
	_ = json.Unmarshal(data, &req)
	return req
}

// replayBody serves the bytes already read, then the rest of the original
// body, and closes the original.
type replayBody struct {
	io.Reader
	io.Closer
}

func recordErrors(span trace.Span, body []byte) {
	defer func() { _ = recover() }()

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Errors) == 0 {
		return
	}
	for i, entry := range resp.Errors {
		msg, _ := entry["message"].(string)
		if msg == "" {
			msg = "unknown GraphQL error"
		}
		span.RecordError(errors.New(msg),
			trace.WithAttributes(flatten.Attributes(flatten.Paths(entry, "graphql.error"))...))
		if i == 0 {
			span.SetStatus(codes.Error, msg)
		}
	}
}

// operationType reads the leading keyword of the document. A bare selection
// set is a query.
func operationType(doc string) string {
	doc = strings.TrimLeftFunc(doc, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	for strings.HasPrefix(doc, "#") {
		if i := strings.IndexByte(doc, '\n'); i >= 0 {
			doc = strings.TrimLeftFunc(doc[i+1:], unicode.IsSpace)
			continue
		}
		return "query"
	}
	for _, kind := range []string{"mutation", "subscription", "query"} {
		if strings.HasPrefix(doc, kind) {
			return kind
		}
	}
	return "query"
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
