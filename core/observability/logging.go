package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/geoflow/geoflow/core/domain/interfaces"
)

// WithTrace annotates log with the trace and span IDs carried by ctx, if any
func WithTrace(ctx context.Context, log interfaces.Logger) interfaces.Logger {
	if ctx == nil {
		return log
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return log
	}
	return log.With(AttrTraceID, spanCtx.TraceID().String()).With(AttrSpanID, spanCtx.SpanID().String())
}
