package transport

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ZhanJunLiau/raven-go/pkg/raven/deadletter"
	rverrors "github.com/ZhanJunLiau/raven-go/pkg/raven/errors"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/event"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/observability"
)

// OverflowPolicy decides what happens when the queue is full.
type OverflowPolicy int

const (
	// DropOldest evicts the head of the queue to make room.
	DropOldest OverflowPolicy = iota
	// DropNewest rejects the incoming event.
	DropNewest
)

// String returns the policy name accepted by ParseOverflowPolicy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy accepts "drop_oldest"/"oldest" and "drop_newest"/"newest".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drop_oldest", "oldest", "drop-oldest":
		return DropOldest, nil
	case "drop_newest", "newest", "drop-newest":
		return DropNewest, nil
	}
	return 0, fmt.Errorf("unknown overflow policy %q", s)
}

// DropFunc is told about every event that will never be delivered.
// It runs on the dropping goroutine and must not block.
type DropFunc func(evt *event.Event, reason string, err error)

// Config configures an Async transport.
type Config struct {
	// QueueSize bounds the number of pending events.
	QueueSize int

	// Overflow picks the victim when the queue is full.
	Overflow OverflowPolicy

	// Workers is the number of delivery goroutines.
	Workers int

	// Retry controls per-event delivery attempts.
	Retry rverrors.RetryConfig

	// SendTimeout bounds a single attempt. Zero means no per-attempt timeout.
	SendTimeout time.Duration

	Logger      *slog.Logger
	Metrics     observability.MetricsRecorder
	Tracing     observability.SpanManager
	DeadLetters deadletter.Store
	OnDrop      DropFunc
}

// Defaults applied by DefaultConfig and to zero fields.
const (
	DefaultQueueSize   = 50
	DefaultWorkers     = 1
	DefaultSendTimeout = 10 * time.Second
)

// DefaultConfig returns a configuration with a 50 event drop-oldest queue,
// one worker, three attempts with 100ms to 5s backoff, and a 10s send timeout.
func DefaultConfig() Config {
	return Config{
		QueueSize:   DefaultQueueSize,
		Overflow:    DropOldest,
		Workers:     DefaultWorkers,
		Retry:       rverrors.DefaultRetry,
		SendTimeout: DefaultSendTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = observability.NoopMetrics{}
	}
	if c.Tracing == nil {
		c.Tracing = observability.NoopSpanManager{}
	}
	return c
}
