package core

import (
	"context"

	"github.com/eli0shin/obs-playground/internal/config"
	"go.opentelemetry.io/otel/trace"
	ddotel "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/opentelemetry"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// VendorServicePrefix is prepended to the service name in vendor mode so
// its traces never collide with the OTLP service of the same name.
const VendorServicePrefix = "dd-"

// VendorTracer is the Datadog native tracer behind an OpenTelemetry
// TracerProvider.
type VendorTracer struct {
	provider *ddotel.TracerProvider
	service  string
}

// StartVendorTracer starts the Datadog tracer. It reports to the agent
// at cfg.AgentAddr() in the background; an unreachable agent is not an error.
func StartVendorTracer(cfg config.VendorConfig, serviceName, version string) *VendorTracer {
	service := VendorServicePrefix + serviceName
	opts := []tracer.StartOption{
		tracer.WithService(service),
		tracer.WithAgentAddr(cfg.AgentAddr()),
		tracer.WithLogStartup(false),
	}
	if version != "" {
		opts = append(opts, tracer.WithServiceVersion(version))
	}
	return &VendorTracer{provider: ddotel.NewTracerProvider(opts...), service: service}
}

// TracerProvider returns the OpenTelemetry-compatible provider.
func (v *VendorTracer) TracerProvider() trace.TracerProvider {
	return v.provider
}

// Service returns the service name reported to the agent.
func (v *VendorTracer) Service() string { return v.service }

// Shutdown flushes and stops the tracer.
func (v *VendorTracer) Shutdown(ctx context.Context) error {
	if v == nil || v.provider == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- v.provider.Shutdown() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
