package obsgrpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/test/bufconn"
)

const (
	timeout = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func startHealthServer(t *testing.T, opts ...Option) (healthpb.HealthClient, *tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	opts = append(opts, WithTracerProvider(tp), WithPropagators(propagation.TraceContext{}))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.StatsHandler(ServerHandler(opts...)))
	healthpb.RegisterHealthServer(srv, health.NewServer())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(ClientHandler(opts...)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn), sr, tp
}

func TestHandlers_TraceUnaryCall(t *testing.T) {
	client, sr, _ := startHealthServer(t)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	require.Eventually(t, func() bool { return len(sr.Ended()) == 2 }, timeout, tick)

	var kinds []trace.SpanKind
	traceIDs := map[trace.TraceID]struct{}{}
	for _, s := range sr.Ended() {
		kinds = append(kinds, s.SpanKind())
		traceIDs[s.SpanContext().TraceID()] = struct{}{}
	}
	assert.ElementsMatch(t, []trace.SpanKind{trace.SpanKindClient, trace.SpanKindServer}, kinds)
	assert.Len(t, traceIDs, 1, "server span continues the client trace")
}

func TestHandlers_IgnoreMethods(t *testing.T) {
	client, sr, tp := startHealthServer(t, WithIgnoreMethods(HealthCheckMethod))

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)

	require.NoError(t, tp.ForceFlush(context.Background()))
	assert.Empty(t, sr.Ended())
}

func TestHandlers_WithFilter(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	client, sr, tp := startHealthServer(t, WithFilter(func(info *stats.RPCTagInfo) bool {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, info.FullMethodName)
		return false
	}))

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)

	require.NoError(t, tp.ForceFlush(context.Background()))
	assert.Empty(t, sr.Ended())
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, HealthCheckMethod)
}

func TestServerHandler(t *testing.T) {
	assert.NotNil(t, ServerHandler())
	assert.NotNil(t, ClientHandler())
}
