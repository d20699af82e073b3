package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records client metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEnqueue records an event accepted into the send queue.
	RecordEnqueue(ctx context.Context)

	// RecordSend records one delivery attempt with its duration and error status.
	RecordSend(ctx context.Context, duration time.Duration, err error)

	// RecordDrop records an event that will never be delivered.
	RecordDrop(ctx context.Context, reason string)

	// RecordRetry records a scheduled retry.
	RecordRetry(ctx context.Context, attempt int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	enqueued    metric.Int64Counter
	sends       metric.Int64Counter
	sendLatency metric.Float64Histogram
	sendErrors  metric.Int64Counter
	dropped     metric.Int64Counter
	retries     metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("raven")

	enqueued, err := meter.Int64Counter("raven.events.enqueued",
		metric.WithDescription("Number of events accepted into the send queue"),
	)
	if err != nil {
		return nil, err
	}

	sends, err := meter.Int64Counter("raven.send.attempts",
		metric.WithDescription("Number of delivery attempts"),
	)
	if err != nil {
		return nil, err
	}

	sendLatency, err := meter.Float64Histogram("raven.send.latency_ms",
		metric.WithDescription("Delivery attempt latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	sendErrors, err := meter.Int64Counter("raven.send.errors",
		metric.WithDescription("Number of failed delivery attempts"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("raven.events.dropped",
		metric.WithDescription("Number of events that were never delivered"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter("raven.send.retries",
		metric.WithDescription("Number of scheduled delivery retries"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		enqueued:    enqueued,
		sends:       sends,
		sendLatency: sendLatency,
		sendErrors:  sendErrors,
		dropped:     dropped,
		retries:     retries,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEnqueue counts an accepted event.
func (m *otelMetrics) RecordEnqueue(ctx context.Context) {
	m.enqueued.Add(ctx, 1)
}

// RecordSend records one delivery attempt and its latency.
func (m *otelMetrics) RecordSend(ctx context.Context, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.Bool("success", err == nil))
	m.sends.Add(ctx, 1, attrs)
	m.sendLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.sendErrors.Add(ctx, 1)
	}
}

// RecordDrop counts a dropped event by reason.
func (m *otelMetrics) RecordDrop(ctx context.Context, reason string) {
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordRetry counts a retry of a delivery attempt.
func (m *otelMetrics) RecordRetry(ctx context.Context, attempt int) {
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.Int("attempt", attempt)))
}
