// Package obs provides request-scoped trace correlation for Go services.
//
// obs unifies structured logging (Zap), distributed tracing and metrics
// (OpenTelemetry) behind a context-first API, and fans every signal out
// to each telemetry backend configured in the environment.
//
// # Guarantees
//
//   - Process Safety: obs never terminates the process (no os.Exit, no panic).
//   - Concurrency: All Logger, Tracer and Console APIs are safe for concurrent use.
//   - Failure Isolation: a failing backend never blocks the others or the caller.
//   - Lifecycle: Shutdown(ctx) flushes all pipelines on a best-effort basis.
//
// # Correlation
//
// Every log line written with a context that carries a span gets trace_id
// and span_id. A request-level operation span can be stored on the context
// with WithOperationSpan, so code deep in a call tree (including goroutines
// started with a derived context) can enrich it without having it passed
// explicitly:
//
//	ctx, span := app.Tracer("recipes").StartOperation(ctx, "GetRecipe")
//	defer span.End()
//
//	// ... anywhere below, including errgroup goroutines
//	obs.SetOperationAttributes(ctx, attribute.String("recipe.id", id))
//
// # Initialization
//
// Init must run before any instrumented package is used:
//
//	app, warnings, err := obs.Init("express-server", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer app.Shutdown(context.Background())
package obs
