package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NewInstrumentedHTTPClient returns a client whose requests are traced.
// Deadlines come from the request context, so no client timeout is set
// unless one is given.
func NewInstrumentedHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(
			http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}
}

// StartPlatformCall opens a span around one call to a publishing platform.
func StartPlatformCall(ctx context.Context, platform, operation string, postID int64) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, fmt.Sprintf("%s.%s", platform, operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("platform", platform),
			attribute.String("platform.operation", operation),
		),
	)
	if postID != 0 {
		span.SetAttributes(attribute.Int64("post.id", postID))
	}
	return ctx, span
}

// EndPlatformCall records the result of a call opened with StartPlatformCall.
func EndPlatformCall(span trace.Span, err error, retryable bool) {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Bool("error.retryable", retryable))
}
