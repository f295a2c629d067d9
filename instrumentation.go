package obs

import (
	"net/http"

	"google.golang.org/grpc"

	"github.com/eli0shin/obs-playground/middleware/obsgraphql"
	"github.com/eli0shin/obs-playground/middleware/obsgrpc"
	"github.com/eli0shin/obs-playground/middleware/obshttp"
)

// Instrumentation names.
const (
	InstrumentHTTPServer = "http.server"
	InstrumentHTTPClient = "http.client"
	InstrumentGRPCServer = "grpc.server"
	InstrumentGRPCClient = "grpc.client"
	InstrumentGraphQL    = "graphql"
	InstrumentFS         = "fs"
)

// Instrumentation switches one integration on or off.
type Instrumentation struct {
	Enabled bool

	// IgnorePaths are URL path prefixes (http.server) or full method
	// names (grpc.server, grpc.client) that are never traced.
	IgnorePaths []string
}

// Instrumentations maps instrumentation names to their switches.
type Instrumentations map[string]Instrumentation

// DefaultInstrumentations enables everything except fs, which produces a
// span per file access.
func DefaultInstrumentations() Instrumentations {
	return Instrumentations{
		InstrumentHTTPServer: {Enabled: true},
		InstrumentHTTPClient: {Enabled: true},
		InstrumentGRPCServer: {Enabled: true},
		InstrumentGRPCClient: {Enabled: true},
		InstrumentGraphQL:    {Enabled: true},
		InstrumentFS:         {Enabled: false},
	}
}

// mergeInstrumentations replaces defaults per key.
func mergeInstrumentations(overrides Instrumentations) Instrumentations {
	out := DefaultInstrumentations()
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Instrumentations returns a copy of the effective switches.
func (app *Obs) Instrumentations() Instrumentations {
	out := make(Instrumentations, len(app.instr))
	for k, v := range app.instr {
		out[k] = v
	}
	return out
}

// Enabled reports whether the named instrumentation is on.
func (app *Obs) Enabled(name string) bool {
	return app.instr[name].Enabled
}

// HTTPHandler wraps h with the server middleware chain: a server span per
// request, request ids, panic recovery and error response inspection.
// h is returned unchanged when http.server is disabled.
func (app *Obs) HTTPHandler(h http.Handler, operation string) http.Handler {
	in := app.instr[InstrumentHTTPServer]
	if !in.Enabled {
		return h
	}
	chain := obshttp.RequestID(obshttp.Recover(obshttp.Responses(h)))
	return obshttp.Handler(chain, operation,
		obshttp.WithIgnorePaths(in.IgnorePaths...),
		obshttp.WithTracerProvider(app.tracerProvider),
		obshttp.WithMeterProvider(app.meterProvider),
		obshttp.WithPropagators(app.propagator),
	)
}

// HTTPClient returns a client that injects trace context into outgoing
// requests, or a plain client when http.client is disabled.
func (app *Obs) HTTPClient() *http.Client {
	if !app.Enabled(InstrumentHTTPClient) {
		return &http.Client{}
	}
	return &http.Client{Transport: app.HTTPTransport(nil)}
}

// HTTPTransport wraps base (http.DefaultTransport when nil).
func (app *Obs) HTTPTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if !app.Enabled(InstrumentHTTPClient) {
		return base
	}
	return obshttp.Transport(base,
		obshttp.WithTracerProvider(app.tracerProvider),
		obshttp.WithMeterProvider(app.meterProvider),
		obshttp.WithPropagators(app.propagator),
	)
}

// GRPCServerOptions returns the server options that trace every RPC.
// It is empty when grpc.server is disabled.
func (app *Obs) GRPCServerOptions() []grpc.ServerOption {
	in := app.instr[InstrumentGRPCServer]
	if !in.Enabled {
		return nil
	}
	return []grpc.ServerOption{grpc.StatsHandler(obsgrpc.ServerHandler(app.grpcOptions(in)...))}
}

// GRPCDialOptions returns the dial options that trace every RPC.
// It is empty when grpc.client is disabled.
func (app *Obs) GRPCDialOptions() []grpc.DialOption {
	in := app.instr[InstrumentGRPCClient]
	if !in.Enabled {
		return nil
	}
	return []grpc.DialOption{grpc.WithStatsHandler(obsgrpc.ClientHandler(app.grpcOptions(in)...))}
}

func (app *Obs) grpcOptions(in Instrumentation) []obsgrpc.Option {
	return []obsgrpc.Option{
		obsgrpc.WithIgnoreMethods(in.IgnorePaths...),
		obsgrpc.WithTracerProvider(app.tracerProvider),
		obsgrpc.WithPropagators(app.propagator),
	}
}

// GraphQLHandler wraps a GraphQL-over-HTTP endpoint with an operation span.
// h is returned unchanged when graphql is disabled.
func (app *Obs) GraphQLHandler(h http.Handler) http.Handler {
	if !app.Enabled(InstrumentGraphQL) {
		return h
	}
	return obsgraphql.Handler(h, obsgraphql.WithTracerProvider(app.tracerProvider))
}
