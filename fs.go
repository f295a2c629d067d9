package obs

import (
	"context"
	"io/fs"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const fsInstrumentationName = "github.com/eli0shin/obs-playground/fs"

// FSPathKey is the attribute holding the accessed path.
const FSPathKey = attribute.Key("fs.path")

// FS wraps fsys so every Open and ReadFile is a child span of the span on
// ctx. fsys is returned unchanged when the fs instrumentation is disabled.
func (app *Obs) FS(ctx context.Context, fsys fs.FS) fs.FS {
	if !app.Enabled(InstrumentFS) {
		return fsys
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &tracedFS{ctx: ctx, fsys: fsys, tracer: app.tracerProvider.Tracer(fsInstrumentationName)}
}

type tracedFS struct {
	ctx    context.Context
	fsys   fs.FS
	tracer trace.Tracer
}

func (t *tracedFS) Open(name string) (fs.File, error) {
	span := t.start("fs.open", name)
	defer span.End()

	f, err := t.fsys.Open(name)
	fail(span, err)
	return f, err
}

func (t *tracedFS) ReadFile(name string) ([]byte, error) {
	span := t.start("fs.readFile", name)
	defer span.End()

	data, err := fs.ReadFile(t.fsys, name)
	if err == nil {
		span.SetAttributes(attribute.Int("fs.size", len(data)))
	}
	fail(span, err)
	return data, err
}

func (t *tracedFS) start(op, name string) trace.Span {
	_, span := t.tracer.Start(t.ctx, op, trace.WithAttributes(FSPathKey.String(name)))
	return span
}

func fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
