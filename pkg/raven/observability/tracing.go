package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Uses the global OTel tracer provider.
var tracer = otel.Tracer("raven")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartCaptureSpan starts a span covering event construction and enqueue.
	StartCaptureSpan(ctx context.Context, eventID string) (context.Context, trace.Span)

	// StartSendSpan starts a span for one delivery attempt.
	StartSendSpan(ctx context.Context, eventID string, attempt int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartCaptureSpan starts a span covering one capture call.
func (m *otelSpanManager) StartCaptureSpan(ctx context.Context, eventID string) (context.Context, trace.Span) {
	return StartCaptureSpan(ctx, eventID)
}

// StartSendSpan starts a span for one delivery attempt.
func (m *otelSpanManager) StartSendSpan(ctx context.Context, eventID string, attempt int) (context.Context, trace.Span) {
	return StartSendSpan(ctx, eventID, attempt)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartCaptureSpan starts a capture span using the global OTel tracer.
func StartCaptureSpan(ctx context.Context, eventID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "raven.capture",
		trace.WithAttributes(
			attribute.String("event.id", eventID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartSendSpan starts a delivery span using the global OTel tracer.
func StartSendSpan(ctx context.Context, eventID string, attempt int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "raven.send",
		trace.WithAttributes(
			attribute.String("event.id", eventID),
			attribute.Int("send.attempt", attempt),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
