package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/ZhanJunLiau/raven-go/pkg/raven/event"
)

// Sender performs one delivery attempt. Implementations must honour ctx
// cancellation; Async relies on it to bound Close.
type Sender interface {
	Send(ctx context.Context, evt *event.Event) error
	Close() error
}

// SenderFunc adapts a function to Sender. Close is a no-op.
type SenderFunc func(ctx context.Context, evt *event.Event) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, evt *event.Event) error { return f(ctx, evt) }

// Close does nothing.
func (f SenderFunc) Close() error { return nil }

// NoopSender accepts and discards every event.
type NoopSender struct{}

// Send discards evt.
func (NoopSender) Send(context.Context, *event.Event) error { return nil }

// Close does nothing.
func (NoopSender) Close() error { return nil }

// LogSender writes each event as one structured log line.
type LogSender struct {
	Logger *slog.Logger
	Level  slog.Level
}

// NewLogSender returns a LogSender at info level. A nil logger uses slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{Logger: logger, Level: slog.LevelInfo}
}

// Send implements Sender by logging the event payload.
func (s *LogSender) Send(ctx context.Context, evt *event.Event) error {
	body, err := json.Marshal(evt.Payload())
	if err != nil {
		return err
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(ctx, s.Level, "raven event",
		slog.String("event_id", evt.ID()),
		slog.String("level", evt.Level().String()),
		slog.String("payload", string(body)),
	)
	return nil
}

// Close does nothing.
func (s *LogSender) Close() error { return nil }

// MemorySender records delivered events. It is meant for tests and can be
// scripted to fail.
type MemorySender struct {
	mu       sync.Mutex
	events   []*event.Event
	attempts int
	failures []error
	always   error
	delay    time.Duration
	closed   bool
	notify   chan struct{}
}

// NewMemorySender returns an empty MemorySender.
func NewMemorySender() *MemorySender {
	return &MemorySender{notify: make(chan struct{}, 1)}
}

// FailNext queues errors returned by the next attempts, in order.
func (m *MemorySender) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// FailAlways makes every attempt fail with err. A nil err clears it.
func (m *MemorySender) FailAlways(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.always = err
}

// SetDelay makes each attempt wait d or until ctx is done.
func (m *MemorySender) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Send implements Sender. It records evt unless a scripted failure applies.
func (m *MemorySender) Send(ctx context.Context, evt *event.Event) error {
	m.mu.Lock()
	m.attempts++
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.always != nil {
		return m.always
	}
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return err
	}
	m.events = append(m.events, evt)
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close implements Sender and marks the sender closed.
func (m *MemorySender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns the delivered events in delivery order.
func (m *MemorySender) Events() []*event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*event.Event, len(m.events))
	copy(out, m.events)
	return out
}

// Attempts returns the number of Send calls, successful or not.
func (m *MemorySender) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Closed reports whether Close was called.
func (m *MemorySender) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// WaitForEvents blocks until at least n events were delivered or timeout
// passes, and reports whether n was reached.
func (m *MemorySender) WaitForEvents(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		m.mu.Lock()
		got := len(m.events)
		m.mu.Unlock()
		if got >= n {
			return true
		}
		select {
		case <-m.notify:
		case <-deadline.C:
			return false
		}
	}
}
