package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTracingTest creates a test tracer provider with an in-memory span recorder.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("raven")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}

	return exporter, cleanup
}

func spanAttr(s tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, attr := range s.Attributes {
		if string(attr.Key) == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestStartCaptureSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	_, span := StartCaptureSpan(context.Background(), "evt-1")
	require.NotNil(t, span)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "raven.capture", spans[0].Name)
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind)

	v, ok := spanAttr(spans[0], "event.id")
	require.True(t, ok)
	assert.Equal(t, "evt-1", v.AsString())
}

func TestStartSendSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	ctx, parent := StartCaptureSpan(context.Background(), "evt-2")
	_, child := StartSendSpan(ctx, "evt-2", 3)
	child.End()
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	send := spans[0]
	assert.Equal(t, "raven.send", send.Name)
	assert.Equal(t, trace.SpanKindClient, send.SpanKind)
	assert.Equal(t, spans[1].SpanContext.SpanID(), send.Parent.SpanID())

	v, ok := spanAttr(send, "send.attempt")
	require.True(t, ok)
	assert.Equal(t, int64(3), v.AsInt64())
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("success sets ok status", func(t *testing.T) {
		exporter.Reset()
		_, span := StartSendSpan(context.Background(), "evt", 1)
		EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
	})

	t.Run("error sets error status and records event", func(t *testing.T) {
		exporter.Reset()
		_, span := StartSendSpan(context.Background(), "evt", 1)
		EndSpanWithError(span, errors.New("HTTP 503"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, "HTTP 503", spans[0].Status.Description)
		require.NotEmpty(t, spans[0].Events)
		assert.Equal(t, "exception", spans[0].Events[0].Name)
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() { EndSpanWithError(nil, errors.New("x")) })
	})
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	ctx, span := StartSendSpan(context.Background(), "evt", 1)
	AddSpanEvent(ctx, "retry.scheduled", attribute.Int("attempt", 1))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "retry.scheduled", spans[0].Events[0].Name)

	assert.NotPanics(t, func() {
		AddSpanEvent(context.Background(), "no span")
	})
}

func TestSpanManager_Interface(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	var sm SpanManager = NewSpanManager()

	ctx, capture := sm.StartCaptureSpan(context.Background(), "evt")
	ctx, send := sm.StartSendSpan(ctx, "evt", 1)
	sm.AddSpanEvent(ctx, "payload.encoded")
	sm.EndSpanWithError(send, nil)
	sm.EndSpanWithError(capture, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "raven.send", spans[0].Name)
	assert.Equal(t, "raven.capture", spans[1].Name)
}
