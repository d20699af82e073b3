package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf    *bytes.Buffer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	// Build a map from the record
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}

	// Add pre-configured attrs
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}

	// Add record attrs
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	// Encode as JSON
	enc := json.NewEncoder(h.buf)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return nil
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  make([]slog.Attr, len(h.attrs)+len(attrs)),
		groups: h.groups,
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(name string) slog.Handler {
	newH := &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(h.groups, name),
	}
	return newH
}

func (h *testHandler) getLastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			var m map[string]any
			if err := json.Unmarshal(lines[i], &m); err == nil {
				return m
			}
		}
	}
	return nil
}

func (h *testHandler) getAllRecords() []map[string]any {
	var records []map[string]any
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for _, line := range lines {
		if len(line) > 0 {
			var m map[string]any
			if err := json.Unmarshal(line, &m); err == nil {
				records = append(records, m)
			}
		}
	}
	return records
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds event_id and attempt", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		enriched := EnrichLogger(logger, "evt-123", 2)
		enriched.Info("test message")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "evt-123", record["event_id"])
		assert.Equal(t, float64(2), record["attempt"]) // JSON decodes ints as float64
		assert.Equal(t, "test message", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "evt-123", 1))
	})
}

func TestLogEventDropped(t *testing.T) {
	h := newTestHandler()
	LogEventDropped(slog.New(h), "evt-1", DropReasonQueueFull)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "event dropped", record["msg"])
	assert.Equal(t, "evt-1", record["event_id"])
	assert.Equal(t, "queue_full", record["reason"])
}

func TestLogSendRetryAndFailed(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)
	sendErr := errors.New("connection refused")

	LogSendRetry(logger, "evt-2", 1, sendErr, 200*time.Millisecond)
	LogSendFailed(logger, "evt-2", 3, sendErr)

	records := h.getAllRecords()
	require.Len(t, records, 2)

	assert.Equal(t, "INFO", records[0]["level"])
	assert.Equal(t, "event send failed, retrying", records[0]["msg"])
	assert.Equal(t, float64(1), records[0]["attempt"])
	assert.Equal(t, "connection refused", records[0]["error"])
	assert.Equal(t, float64(200*time.Millisecond), records[0]["wait"])

	assert.Equal(t, "ERROR", records[1]["level"])
	assert.Equal(t, "event send failed", records[1]["msg"])
	assert.Equal(t, float64(3), records[1]["attempts"])
}

func TestLogEventLifecycle(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogEventEnqueued(logger, "evt-3", 4)
	LogEventSent(logger, "evt-3", 1, 12.5)

	records := h.getAllRecords()
	require.Len(t, records, 2)
	assert.Equal(t, "DEBUG", records[0]["level"])
	assert.Equal(t, float64(4), records[0]["queue_len"])
	assert.Equal(t, "event sent", records[1]["msg"])
	assert.Equal(t, 12.5, records[1]["duration_ms"])
}

func TestLogTransportClosed(t *testing.T) {
	t.Run("clean shutdown logs at INFO", func(t *testing.T) {
		h := newTestHandler()
		LogTransportClosed(slog.New(h), 5, 0, 10)

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "INFO", record["level"])
		assert.Equal(t, float64(5), record["delivered"])
	})

	t.Run("discarded events log at WARN", func(t *testing.T) {
		h := newTestHandler()
		LogTransportClosed(slog.New(h), 1, 3, 10)

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "WARN", record["level"])
		assert.Equal(t, float64(3), record["discarded"])
	})
}

func TestLogFactoryFailedAndHelperPanic(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogFactoryFailed(logger, "raven.DefaultFactory", errors.New("bad dsn"))
	LogHelperPanic(logger, "hostname", "boom")
	LogDeadLetterError(logger, "evt-4", errors.New("disk full"))

	records := h.getAllRecords()
	require.Len(t, records, 3)
	assert.Equal(t, "raven.DefaultFactory", records[0]["factory"])
	assert.Equal(t, "bad dsn", records[0]["error"])
	assert.Equal(t, "hostname", records[1]["helper"])
	assert.Equal(t, "boom", records[1]["panic"])
	assert.Equal(t, "dead letter save failed", records[2]["msg"])
}

func TestLogHelpers_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		LogEventEnqueued(nil, "e", 1)
		LogEventDropped(nil, "e", DropReasonClosed)
		LogEventSent(nil, "e", 1, 1)
		LogSendRetry(nil, "e", 1, nil, 0)
		LogSendFailed(nil, "e", 1, nil)
		LogTransportClosed(nil, 0, 0, 0)
		LogFactoryFailed(nil, "f", nil)
		LogHelperPanic(nil, "h", nil)
		LogDeadLetterError(nil, "e", nil)
	})
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), 5.0)
}
