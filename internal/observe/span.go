package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// scope names the tracer all server spans are started on.
const scope = "github.com/MrWong99/prosodia"

// Tracer returns the prosodia tracer of the current global provider.
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(scope)
}

// StartSpan starts a span on [Tracer]. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the trace ID carried by ctx, as echoed in the
// X-Correlation-ID response header. It is empty outside a trace.
func CorrelationID(ctx context.Context) string {
	if id := trace.SpanContextFromContext(ctx).TraceID(); id.IsValid() {
		return id.String()
	}
	return ""
}

// Logger is the default logger bound to the span in ctx, so analysis logs
// can be joined with the request that caused them.
func Logger(ctx context.Context) *slog.Logger {
	return slog.Default().With(spanAttrs(ctx)...)
}

func spanAttrs(ctx context.Context) []any {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []any{
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	}
}
