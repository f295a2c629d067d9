// Package obshttp provides HTTP server and client instrumentation.
//
// Server middleware creates spans for incoming requests and enriches them
// from the response. Recover goes outside Responses so a panic is recorded
// once:
//
//	r := mux.NewRouter()
//	r.HandleFunc("/ingredients/{id}/price", price)
//	h := obshttp.Handler(obshttp.RequestID(obshttp.Recover(obshttp.Responses(r))), "express-server",
//		obshttp.WithIgnorePaths("/health"))
//	http.ListenAndServe(":3001", h)
//
// Client instrumentation wraps an http.Client:
//
//	client := obshttp.Client()
//	resp, err := client.Get("http://localhost:4000/graphql")
package obshttp

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Handler wraps an http.Handler with OpenTelemetry instrumentation. Each
// request that passes the filters gets a server span named operation
// carrying method, route, status and size attributes.
func Handler(handler http.Handler, operation string, opts ...Option) http.Handler {
	o := newOptions(opts)

	otelOpts := o.otelOptions()
	if filter := o.serverFilter(); filter != nil {
		otelOpts = append(otelOpts, otelhttp.WithFilter(filter))
	}
	return otelhttp.NewHandler(handler, operation, otelOpts...)
}

// Client returns an HTTP client instrumented with OpenTelemetry.
// Each request creates a client span linked to the current trace context
// and carries the propagation headers.
func Client(opts ...Option) *http.Client {
	return &http.Client{Transport: Transport(nil, opts...)}
}

// Transport returns an http.RoundTripper instrumented with OpenTelemetry.
// A nil base uses http.DefaultTransport.
func Transport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	o := newOptions(opts)
	otelOpts := o.otelOptions()
	if o.filter != nil {
		otelOpts = append(otelOpts, otelhttp.WithFilter(o.filter))
	}
	return otelhttp.NewTransport(base, otelOpts...)
}

// --- Options ---

type options struct {
	filter         otelhttp.Filter
	ignorePaths    []string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagators    propagation.TextMapPropagator
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt.apply(o)
	}
	return o
}

func (o *options) otelOptions() []otelhttp.Option {
	var out []otelhttp.Option
	if o.tracerProvider != nil {
		out = append(out, otelhttp.WithTracerProvider(o.tracerProvider))
	}
	if o.meterProvider != nil {
		out = append(out, otelhttp.WithMeterProvider(o.meterProvider))
	}
	if o.propagators != nil {
		out = append(out, otelhttp.WithPropagators(o.propagators))
	}
	return out
}

// serverFilter combines the user filter with the ignored path prefixes.
func (o *options) serverFilter() otelhttp.Filter {
	if o.filter == nil && len(o.ignorePaths) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		for _, p := range o.ignorePaths {
			if strings.HasPrefix(r.URL.Path, p) {
				return false
			}
		}
		return o.filter == nil || o.filter(r)
	}
}

// Option configures HTTP instrumentation.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithFilter sets a filter function to exclude requests from tracing.
// Return true to include the request, false to skip.
//
// Example:
//
//	obshttp.Handler(mux, "api", obshttp.WithFilter(func(r *http.Request) bool {
//	    return r.Method != http.MethodOptions
//	}))
func WithFilter(filter func(r *http.Request) bool) Option {
	return optionFunc(func(o *options) { o.filter = otelhttp.Filter(filter) })
}

// WithIgnorePaths skips tracing for server requests whose path starts with
// any of prefixes.
func WithIgnorePaths(prefixes ...string) Option {
	return optionFunc(func(o *options) { o.ignorePaths = append(o.ignorePaths, prefixes...) })
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return optionFunc(func(o *options) { o.tracerProvider = tp })
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return optionFunc(func(o *options) { o.meterProvider = mp })
}

// WithPropagators overrides the global propagator.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return optionFunc(func(o *options) { o.propagators = p })
}
