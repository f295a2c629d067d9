// Package obsgrpc provides gRPC server and client instrumentation using OpenTelemetry.
//
// Server instrumentation using stats handler:
//
//	server := grpc.NewServer(
//	    grpc.StatsHandler(obsgrpc.ServerHandler()),
//	)
//
// Client instrumentation using stats handler:
//
//	conn, err := grpc.NewClient(addr,
//	    grpc.WithStatsHandler(obsgrpc.ClientHandler()),
//	)
package obsgrpc

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/stats"
)

// HealthCheckMethod is the standard health check, commonly ignored.
const HealthCheckMethod = "/grpc.health.v1.Health/Check"

// ServerHandler returns a stats.Handler for gRPC server instrumentation.
// Use with grpc.StatsHandler() option when creating a gRPC server.
func ServerHandler(opts ...Option) stats.Handler {
	return otelgrpc.NewServerHandler(newOptions(opts).otelOptions()...)
}

// ClientHandler returns a stats.Handler for gRPC client instrumentation.
// Use with grpc.WithStatsHandler() option when dialing.
func ClientHandler(opts ...Option) stats.Handler {
	return otelgrpc.NewClientHandler(newOptions(opts).otelOptions()...)
}

// --- Options ---

type options struct {
	filter         otelgrpc.Filter
	ignoreMethods  map[string]struct{}
	tracerProvider trace.TracerProvider
	propagators    propagation.TextMapPropagator
}

func newOptions(opts []Option) *options {
	o := &options{ignoreMethods: map[string]struct{}{}}
	for _, opt := range opts {
		opt.apply(o)
	}
	return o
}

func (o *options) otelOptions() []otelgrpc.Option {
	var out []otelgrpc.Option
	if o.filter != nil || len(o.ignoreMethods) > 0 {
		out = append(out, otelgrpc.WithFilter(o.combinedFilter))
	}
	if o.tracerProvider != nil {
		out = append(out, otelgrpc.WithTracerProvider(o.tracerProvider))
	}
	if o.propagators != nil {
		out = append(out, otelgrpc.WithPropagators(o.propagators))
	}
	return out
}

func (o *options) combinedFilter(info *stats.RPCTagInfo) bool {
	if _, skip := o.ignoreMethods[info.FullMethodName]; skip {
		return false
	}
	return o.filter == nil || o.filter(info)
}

// Option configures gRPC instrumentation.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithFilter sets a filter function to exclude methods from tracing.
// Return false to skip tracing for the given request.
//
// Example:
//
//	obsgrpc.ServerHandler(obsgrpc.WithFilter(func(info *stats.RPCTagInfo) bool {
//	    return !strings.HasPrefix(info.FullMethodName, "/grpc.reflection.")
//	}))
func WithFilter(filter func(info *stats.RPCTagInfo) bool) Option {
	return optionFunc(func(o *options) { o.filter = filter })
}

// WithIgnoreMethods skips tracing for the given full method names.
func WithIgnoreMethods(methods ...string) Option {
	return optionFunc(func(o *options) {
		for _, m := range methods {
			o.ignoreMethods[m] = struct{}{}
		}
	})
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return optionFunc(func(o *options) { o.tracerProvider = tp })
}

// WithPropagators overrides the global propagator.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return optionFunc(func(o *options) { o.propagators = p })
}
