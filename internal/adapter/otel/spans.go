package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "taskdealer"

// StartUploadSpan starts the root span for one upload.
func StartUploadSpan(ctx context.Context, source, format string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "upload",
		trace.WithAttributes(
			attribute.String("upload.source", source),
			attribute.String("upload.format", format),
		),
	)
}

// StartStageSpan starts a child span for one pipeline stage.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "upload."+stage,
		trace.WithAttributes(attribute.String("upload.stage", stage)),
	)
}

// EndSpan records err, if any, and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
