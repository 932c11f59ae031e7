package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "lifelog"

// StartTaskSpan starts a span for one task handler invocation.
func StartTaskSpan(ctx context.Context, taskID, taskType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.type", taskType),
		),
	)
}

// StartStageSpan starts a span for one pipeline stage (transcribe,
// summarize, transcode, ...) applied to a file.
func StartStageSpan(ctx context.Context, stage, path string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, stage,
		trace.WithAttributes(
			attribute.String("file.path", path),
		),
	)
}
