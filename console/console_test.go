package console

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/eli0shin/obs-playground/obsctx"
)

type recordingProcessor struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (p *recordingProcessor) OnEmit(_ context.Context, r *sdklog.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r.Clone())
	return nil
}
func (p *recordingProcessor) Shutdown(context.Context) error   { return nil }
func (p *recordingProcessor) ForceFlush(context.Context) error { return nil }
func (p *recordingProcessor) Enabled(context.Context, sdklog.EnabledParameters) bool {
	return true
}

func (p *recordingProcessor) all() []sdklog.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sdklog.Record(nil), p.records...)
}

func recordAttrs(r sdklog.Record) map[string]string {
	out := map[string]string{}
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value.AsString()
		return true
	})
	return out
}

func newTestConsole(t *testing.T) (*Console, *bytes.Buffer, *bytes.Buffer, *recordingProcessor) {
	t.Helper()
	var out, errOut bytes.Buffer
	proc := &recordingProcessor{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(proc))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	c := New(
		WithOriginal(NewWriterSink(&out, &errOut)),
		WithSinks(NewOTelSink(lp, "nextjs-app")),
	)
	return c, &out, &errOut, proc
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"log", LevelInfo},
		{"WARN", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"err", LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLevelSeverity(t *testing.T) {
	tests := []struct {
		level Level
		num   int
		text  string
	}{
		{LevelTrace, 1, "TRACE"},
		{LevelDebug, 5, "DEBUG"},
		{LevelInfo, 9, "INFO"},
		{LevelWarn, 13, "WARN"},
		{LevelError, 17, "ERROR"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.num, int(tt.level.Severity()))
		assert.Equal(t, tt.text, tt.level.String())
	}
}

func TestFormatBody(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want string
	}{
		{"strings", []any{"hello", "world"}, "hello world"},
		{"numbers and bools", []any{"n", 42, 1.5, true}, "n 42 1.5 true"},
		{"object", []any{"user", map[string]any{"id": "u1"}}, `user {"id":"u1"}`},
		{"slice", []any{[]int{1, 2}}, "[1,2]"},
		{"nil", []any{nil}, "null"},
		{"error", []any{errors.New("boom")}, "boom"},
		{"nil stringer", []any{"link", (*url.URL)(nil)}, "link <nil>"},
		{"nil error", []any{(*os.PathError)(nil)}, "<nil>"},
		{"panicking marshaler", []any{panicMarshaler{}}, "{}"},
		{"unencodable", []any{make(chan int)}, ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatBody(tt.args...)
			if tt.name == "unencodable" {
				assert.NotEmpty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConsole_WritesOriginalThenRecord(t *testing.T) {
	c, out, errOut, proc := newTestConsole(t)

	c.Info(context.Background(), "price", map[string]any{"id": "flour"})
	c.Error(context.Background(), "failed")

	assert.Equal(t, "price {\"id\":\"flour\"}\n", out.String())
	assert.Equal(t, "failed\n", errOut.String())

	records := proc.all()
	require.Len(t, records, 2)
	assert.Equal(t, `price {"id":"flour"}`, records[0].Body().AsString())
	assert.Equal(t, otellog.SeverityInfo1, records[0].Severity())
	assert.Equal(t, "INFO", records[0].SeverityText())
	assert.Equal(t, "nextjs-app", records[0].InstrumentationScope().Name)
	assert.Equal(t, ScopeVersion, records[0].InstrumentationScope().Version)
	assert.Equal(t, otellog.SeverityError1, records[1].Severity())
}

func TestConsole_CorrelationOnlyWithSpan(t *testing.T) {
	c, _, _, proc := newTestConsole(t)

	c.Info(context.Background(), "no span")

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	c.Warn(ctx, "with span")
	span.End()

	records := proc.all()
	require.Len(t, records, 2)

	attrs := recordAttrs(records[0])
	assert.NotContains(t, attrs, "trace_id")
	assert.NotContains(t, attrs, "span_id")

	attrs = recordAttrs(records[1])
	assert.Equal(t, span.SpanContext().TraceID().String(), attrs["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), attrs["span_id"])
	assert.Equal(t, span.SpanContext().TraceID(), records[1].TraceID())
}

func TestConsole_PrefersOperationSpan(t *testing.T) {
	c, _, _, proc := newTestConsole(t)

	tp := sdktrace.NewTracerProvider()
	tracer := tp.Tracer("test")
	ctx, active := tracer.Start(context.Background(), "child")
	_, op := tracer.Start(context.Background(), "graphql.execute")
	ctx = obsctx.WithOperationSpan(ctx, op)

	c.Info(ctx, "resolver")
	active.End()
	op.End()

	records := proc.all()
	require.Len(t, records, 1)
	assert.Equal(t, op.SpanContext().SpanID().String(), recordAttrs(records[0])["span_id"])
}

func TestConsole_SinkFailuresNeverReachCaller(t *testing.T) {
	var out bytes.Buffer
	var reached []string
	c := New(
		WithOriginal(NewWriterSink(&out, nil)),
		WithSinks(
			SinkFunc(func(context.Context, Entry) error { panic("exporter exploded") }),
			SinkFunc(func(context.Context, Entry) error { return errors.New("queue full") }),
		),
	)
	c.AddSink(SinkFunc(func(_ context.Context, e Entry) error {
		reached = append(reached, e.Body)
		return nil
	}))

	assert.NotPanics(t, func() {
		//nolint:staticcheck // nil ctx is accepted
		c.Info(nil, "still printed")
	})
	assert.Equal(t, "still printed\n", out.String())
	assert.Equal(t, []string{"still printed"}, reached)
	assert.Equal(t, int64(2), c.Dropped())
}

type panicMarshaler struct{}

func (panicMarshaler) MarshalJSON() ([]byte, error) { panic("marshal exploded") }

func TestConsole_NilStringerStillPrinted(t *testing.T) {
	c, stdout, _, proc := newTestConsole(t)

	assert.NotPanics(t, func() {
		c.Info(context.Background(), "link", (*url.URL)(nil))
	})
	assert.Equal(t, "link <nil>\n", stdout.String())
	require.Len(t, proc.all(), 1)
	assert.Equal(t, "link <nil>", proc.all()[0].Body().AsString())
}

func TestConsole_Clock(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var got Entry
	c := New(
		WithOriginal(nil),
		WithClock(func() time.Time { return at }),
		WithSinks(SinkFunc(func(_ context.Context, e Entry) error {
			got = e
			return nil
		})),
	)
	c.Debug(context.Background(), "tick", 1)
	assert.Equal(t, at, got.Time)
	assert.Equal(t, LevelDebug, got.Level)
	assert.Equal(t, []any{"tick", 1}, got.Args)
}

func TestConsole_ConcurrentAddSink(t *testing.T) {
	c := New(WithOriginal(nil))
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.AddSink(SinkFunc(func(context.Context, Entry) error { return nil }))
		}()
		go func() {
			defer wg.Done()
			c.Info(context.Background(), "x")
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(0), c.Dropped())
}

func TestLogrusHook(t *testing.T) {
	c, out, _, proc := newTestConsole(t)

	var logrusOut bytes.Buffer
	l := logrus.New()
	l.SetOutput(&logrusOut)
	l.SetLevel(logrus.TraceLevel)
	l.AddHook(NewLogrusHook(c))

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	l.WithContext(ctx).WithField("recipe", "bread").WithError(errors.New("no flour")).Warn("cost failed")
	span.End()

	assert.Contains(t, logrusOut.String(), "cost failed")
	assert.Empty(t, out.String(), "hook must not print through the console")

	records := proc.all()
	require.Len(t, records, 1)
	assert.Equal(t, `cost failed {"error":"no flour","recipe":"bread"}`, records[0].Body().AsString())
	assert.Equal(t, otellog.SeverityWarn1, records[0].Severity())
	assert.Equal(t, span.SpanContext().TraceID().String(), recordAttrs(records[0])["trace_id"])
}

func TestSlogHandler(t *testing.T) {
	c, _, _, proc := newTestConsole(t)

	var slogOut bytes.Buffer
	next := slog.NewTextHandler(&slogOut, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(NewSlogHandler(next, c)).With("service", "api").WithGroup("req")

	logger.DebugContext(context.Background(), "hidden")
	logger.InfoContext(context.Background(), "served", "status", 200)

	assert.Contains(t, slogOut.String(), "served")
	assert.NotContains(t, slogOut.String(), "hidden")

	records := proc.all()
	require.Len(t, records, 1)
	assert.Equal(t, `served {"req.status":200,"service":"api"}`, records[0].Body().AsString())
	assert.Equal(t, otellog.SeverityInfo1, records[0].Severity())
}

func TestFromSlog(t *testing.T) {
	assert.Equal(t, LevelTrace, fromSlog(slog.LevelDebug-4))
	assert.Equal(t, LevelDebug, fromSlog(slog.LevelDebug))
	assert.Equal(t, LevelInfo, fromSlog(slog.LevelInfo))
	assert.Equal(t, LevelWarn, fromSlog(slog.LevelWarn))
	assert.Equal(t, LevelError, fromSlog(slog.LevelError+4))
}
