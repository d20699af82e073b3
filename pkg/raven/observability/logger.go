// Package observability provides the client's logging, metrics and tracing
// helpers: structured logging via slog, metrics and tracing via OpenTelemetry.
//
// All features are opt-in and have no-op implementations when disabled.
// Every logging helper accepts a nil logger.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Drop reasons attached to dropped-event logs and metrics.
const (
	DropReasonQueueFull  = "queue_full"
	DropReasonClosed     = "closed"
	DropReasonShutdown   = "shutdown"
	DropReasonSendFailed = "send_failed"
)

// EnrichLogger adds event context to a logger.
// Returns a new logger with event_id and attempt fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, evt.ID, 2)
//	enriched.Warn("sender slow") // includes event_id, attempt
func EnrichLogger(logger *slog.Logger, eventID string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("event_id", eventID),
		slog.Int("attempt", attempt),
	)
}

// LogEventEnqueued logs acceptance of an event into the send queue.
func LogEventEnqueued(logger *slog.Logger, eventID string, queueLen int) {
	if logger == nil {
		return
	}
	logger.Debug("event enqueued",
		slog.String("event_id", eventID),
		slog.Int("queue_len", queueLen),
	)
}

// LogEventDropped logs an event that will never be delivered.
func LogEventDropped(logger *slog.Logger, eventID, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("event dropped",
		slog.String("event_id", eventID),
		slog.String("reason", reason),
	)
}

// LogEventSent logs successful delivery.
func LogEventSent(logger *slog.Logger, eventID string, attempts int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("event sent",
		slog.String("event_id", eventID),
		slog.Int("attempts", attempts),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogSendRetry logs a failed attempt that will be retried after wait.
func LogSendRetry(logger *slog.Logger, eventID string, attempt int, err error, wait time.Duration) {
	if logger == nil {
		return
	}
	logger.Info("event send failed, retrying",
		slog.String("event_id", eventID),
		slog.Int("attempt", attempt),
		slog.String("error", errString(err)),
		slog.Duration("wait", wait),
	)
}

// LogSendFailed logs an event that exhausted its attempts or hit a permanent error.
func LogSendFailed(logger *slog.Logger, eventID string, attempts int, err error) {
	if logger == nil {
		return
	}
	logger.Error("event send failed",
		slog.String("event_id", eventID),
		slog.Int("attempts", attempts),
		slog.String("error", errString(err)),
	)
}

// LogTransportClosed logs the outcome of a transport shutdown.
func LogTransportClosed(logger *slog.Logger, delivered, discarded int, durationMs float64) {
	if logger == nil {
		return
	}
	level := slog.LevelInfo
	if discarded > 0 {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "transport closed",
		slog.Int("delivered", delivered),
		slog.Int("discarded", discarded),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogFactoryFailed logs a factory that could not produce a client.
func LogFactoryFailed(logger *slog.Logger, factory string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("client factory failed",
		slog.String("factory", factory),
		slog.String("error", errString(err)),
	)
}

// LogHelperPanic logs a helper that panicked while enriching an event.
func LogHelperPanic(logger *slog.Logger, helper string, recovered any) {
	if logger == nil {
		return
	}
	logger.Error("event helper panicked",
		slog.String("helper", helper),
		slog.String("panic", fmt.Sprint(recovered)),
	)
}

// LogDeadLetterError logs a dead-letter store failure (non-fatal).
func LogDeadLetterError(logger *slog.Logger, eventID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("dead letter save failed",
		slog.String("event_id", eventID),
		slog.String("error", errString(err)),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
