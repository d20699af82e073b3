package raven

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ZhanJunLiau/raven-go/pkg/raven/deadletter"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/dsn"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/event"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/observability"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/transport"
)

// errNotQueued marks capture spans for events the transport refused.
var errNotQueued = errors.New("event not queued")

// Client captures events and hands them to an asynchronous transport.
// All methods are safe for concurrent use. Capture methods never block on
// the network.
type Client struct {
	dsn       *dsn.DSN
	helpers   *event.HelperChain
	transport *transport.Async
	tracing   observability.SpanManager
	closed    atomic.Bool

	// deadLetters is owned by the client and closed with it.
	deadLetters deadletter.Store
}

type clientConfig struct {
	transport   transport.Config
	helpers     []event.Helper
	logger      *slog.Logger
	metrics     observability.MetricsRecorder
	tracing     observability.SpanManager
	deadLetters deadletter.Store
}

// ClientOption configures NewClient.
type ClientOption func(*clientConfig)

// WithTransportConfig replaces the transport configuration.
// Default: transport.DefaultConfig()
func WithTransportConfig(cfg transport.Config) ClientOption {
	return func(c *clientConfig) {
		c.transport = cfg
	}
}

// WithHelpers appends helpers to the chain, in order.
func WithHelpers(helpers ...event.Helper) ClientOption {
	return func(c *clientConfig) {
		c.helpers = append(c.helpers, helpers...)
	}
}

// WithLogger sets the logger used by the client and its transport.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the recorder for transport metrics.
//
// Example:
//
//	client, err := raven.NewClient(d, sender, raven.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) ClientOption {
	return func(c *clientConfig) {
		c.metrics = m
	}
}

// WithTracing sets the span manager for capture and send spans.
func WithTracing(sm observability.SpanManager) ClientOption {
	return func(c *clientConfig) {
		c.tracing = sm
	}
}

// WithDeadLetters records events that exhaust their retries in store.
// The client closes store when it is closed.
func WithDeadLetters(store deadletter.Store) ClientOption {
	return func(c *clientConfig) {
		c.deadLetters = store
	}
}

// NewClient returns a running client that delivers through sender.
// d may be nil for clients that do not talk to a collector.
func NewClient(d *dsn.DSN, sender transport.Sender, opts ...ClientOption) (*Client, error) {
	if sender == nil {
		return nil, ErrNilSender
	}

	cfg := clientConfig{transport: transport.DefaultConfig()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.transport.Logger == nil {
		cfg.transport.Logger = cfg.logger
	}
	if cfg.metrics != nil {
		cfg.transport.Metrics = cfg.metrics
	}
	if cfg.tracing != nil {
		cfg.transport.Tracing = cfg.tracing
	}
	if cfg.deadLetters != nil {
		cfg.transport.DeadLetters = cfg.deadLetters
	}
	tracing := cfg.transport.Tracing
	if tracing == nil {
		tracing = observability.NoopSpanManager{}
	}

	helpers := event.NewHelperChain(cfg.helpers...)
	helpers.SetLogger(cfg.logger)

	return &Client{
		dsn:       d,
		helpers:   helpers,
		transport: transport.NewAsync(sender, cfg.transport),
		tracing:   tracing,

		deadLetters: cfg.deadLetters,
	}, nil
}

// Capture runs the helper chain on b, builds the event and queues it.
// It returns the event ID immediately; delivery happens in the background.
// A nil builder captures an empty event.
func (c *Client) Capture(b *event.Builder) string {
	if b == nil {
		b = event.NewBuilder()
	}
	c.helpers.Apply(b)
	return c.CaptureEvent(b.Build())
}

// CaptureMessage captures an info-level message.
func (c *Client) CaptureMessage(msg string) string {
	return c.Capture(event.NewBuilder().WithMessage(msg).WithLevel(event.LevelInfo))
}

// CaptureError captures err with its unwrap chain and the caller's stack.
// A nil err captures nothing and returns "".
func (c *Client) CaptureError(err error) string {
	if err == nil {
		return ""
	}
	return c.Capture(event.NewBuilder().WithError(err))
}

// CaptureEvent queues an already built event. Helpers are not applied
// because events are immutable.
func (c *Client) CaptureEvent(evt *event.Event) string {
	if evt == nil {
		return ""
	}
	_, span := c.tracing.StartCaptureSpan(context.Background(), evt.ID())
	var err error
	if !c.transport.Enqueue(evt) {
		err = errNotQueued
	}
	c.tracing.EndSpanWithError(span, err)
	return evt.ID()
}

// AddHelper appends h to the helper chain. Events captured afterwards see it.
func (c *Client) AddHelper(h event.Helper) {
	c.helpers.Add(h)
}

// Helpers returns the registered helpers in order.
func (c *Client) Helpers() []event.Helper {
	return c.helpers.Helpers()
}

// DSN returns the descriptor the client was built from, possibly nil.
func (c *Client) DSN() *dsn.DSN {
	return c.dsn
}

// Transport exposes the underlying transport for stats and state.
func (c *Client) Transport() *transport.Async {
	return c.transport
}

// DeadLetters returns the store set with WithDeadLetters, or nil.
func (c *Client) DeadLetters() deadletter.Store {
	return c.deadLetters
}

// Close drains pending events within timeout and releases the transport.
// Captures after Close are dropped. Repeated calls return nil.
func (c *Client) Close(timeout time.Duration) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.transport.Close(timeout)
	if c.deadLetters != nil {
		if cerr := c.deadLetters.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}
