package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ZhanJunLiau/raven-go/pkg/raven/deadletter"
	rverrors "github.com/ZhanJunLiau/raven-go/pkg/raven/errors"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/event"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/observability"
)

// ErrDrainTimeout is returned by Close when pending events had to be discarded.
var ErrDrainTimeout = errors.New("transport: drain timed out, pending events discarded")

// deadLetterTimeout bounds a single dead-letter save.
const deadLetterTimeout = 2 * time.Second

// State is the lifecycle stage of an Async transport.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of transport counters.
type Stats struct {
	Enqueued        uint64
	Sent            uint64
	Failed          uint64
	DroppedOverflow uint64
	DroppedClosed   uint64
	Discarded       uint64
	Retries         uint64
}

type counters struct {
	enqueued        atomic.Uint64
	sent            atomic.Uint64
	failed          atomic.Uint64
	droppedOverflow atomic.Uint64
	droppedClosed   atomic.Uint64
	discarded       atomic.Uint64
	retries         atomic.Uint64
}

// Async delivers events on a fixed pool of workers fed by a bounded FIFO.
// Enqueue never blocks; only Close does.
type Async struct {
	sender Sender
	cfg    Config

	mu    sync.Mutex // guards queue and state transitions
	queue *ring[*event.Event]
	state atomic.Int32

	wake     chan struct{}
	draining chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats counters
}

// NewAsync starts a transport delivering through sender. Zero Config fields
// take the DefaultConfig values, except Retry where zero means one attempt.
func NewAsync(sender Sender, cfg Config) *Async {
	a := newAsync(sender, cfg)
	a.start()
	return a
}

func newAsync(sender Sender, cfg Config) *Async {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Async{
		sender:   sender,
		cfg:      cfg,
		queue:    newRing[*event.Event](cfg.QueueSize),
		wake:     make(chan struct{}, 1),
		draining: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (a *Async) start() {
	for i := 0; i < a.cfg.Workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
}

// State returns the current lifecycle stage.
func (a *Async) State() State {
	return State(a.state.Load())
}

// Len returns the number of queued events.
func (a *Async) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queue.len()
}

// queued returns the pending events, oldest first.
func (a *Async) queued() []*event.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queue.items()
}

// Stats returns a snapshot of the counters.
func (a *Async) Stats() Stats {
	return Stats{
		Enqueued:        a.stats.enqueued.Load(),
		Sent:            a.stats.sent.Load(),
		Failed:          a.stats.failed.Load(),
		DroppedOverflow: a.stats.droppedOverflow.Load(),
		DroppedClosed:   a.stats.droppedClosed.Load(),
		Discarded:       a.stats.discarded.Load(),
		Retries:         a.stats.retries.Load(),
	}
}

// Enqueue queues evt for delivery and reports whether it was accepted.
// When the queue is full the overflow policy picks a victim. After Close
// has begun every event is dropped.
func (a *Async) Enqueue(evt *event.Event) bool {
	if evt == nil {
		return false
	}

	a.mu.Lock()
	if a.State() != StateRunning {
		a.mu.Unlock()
		a.stats.droppedClosed.Add(1)
		a.drop(evt, observability.DropReasonClosed, nil)
		return false
	}

	var evicted *event.Event
	if a.queue.full() {
		if a.cfg.Overflow == DropNewest {
			a.mu.Unlock()
			a.stats.droppedOverflow.Add(1)
			a.drop(evt, observability.DropReasonQueueFull, nil)
			return false
		}
		evicted, _ = a.queue.pop()
	}
	a.queue.push(evt)
	n := a.queue.len()
	a.mu.Unlock()

	a.signal()
	a.stats.enqueued.Add(1)
	a.cfg.Metrics.RecordEnqueue(a.ctx)
	observability.LogEventEnqueued(a.cfg.Logger, evt.ID(), n)

	if evicted != nil {
		a.stats.droppedOverflow.Add(1)
		a.drop(evicted, observability.DropReasonQueueFull, nil)
	}
	return true
}

func (a *Async) signal() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// dequeue pops the head. It re-signals when more work remains so that
// other idle workers wake up.
func (a *Async) dequeue() (*event.Event, bool) {
	a.mu.Lock()
	evt, ok := a.queue.pop()
	more := a.queue.len() > 0
	a.mu.Unlock()
	if more {
		a.signal()
	}
	return evt, ok
}

func (a *Async) worker() {
	defer a.wg.Done()
	for {
		if evt, ok := a.dequeue(); ok {
			a.deliver(evt)
			continue
		}
		if a.State() != StateRunning {
			return
		}
		select {
		case <-a.wake:
		case <-a.draining:
		}
	}
}

func (a *Async) deliver(evt *event.Event) {
	done := observability.TimedOperation()
	attempt := 0

	retry := a.cfg.Retry
	retry.OnRetry = func(n int, err error, wait time.Duration) {
		a.stats.retries.Add(1)
		a.cfg.Metrics.RecordRetry(a.ctx, n)
		observability.LogSendRetry(a.cfg.Logger, evt.ID(), n, err, wait)
	}

	res := rverrors.WithRetryContext(a.ctx, retry, func(ctx context.Context) (struct{}, error) {
		attempt++
		return struct{}{}, a.attempt(ctx, evt, attempt)
	})

	switch {
	case res.Err == nil:
		a.stats.sent.Add(1)
		observability.LogEventSent(a.cfg.Logger, evt.ID(), res.Attempts, done())
	case a.ctx.Err() != nil:
		// Close gave up on draining
		a.stats.discarded.Add(1)
		a.drop(evt, observability.DropReasonShutdown, res.Err)
	default:
		a.stats.failed.Add(1)
		observability.LogSendFailed(a.cfg.Logger, evt.ID(), res.Attempts, res.Err)
		a.deadLetter(evt, res.Err, res.Attempts)
		a.drop(evt, observability.DropReasonSendFailed, res.Err)
	}
}

func (a *Async) attempt(ctx context.Context, evt *event.Event, n int) (err error) {
	if a.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.SendTimeout)
		defer cancel()
	}
	ctx, span := a.cfg.Tracing.StartSendSpan(ctx, evt.ID(), n)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = rverrors.Permanent(fmt.Errorf("sender panicked: %v", r), "send")
		}
		a.cfg.Metrics.RecordSend(ctx, time.Since(start), err)
		a.cfg.Tracing.EndSpanWithError(span, err)
	}()

	if err := a.sender.Send(ctx, evt); err != nil {
		a.cfg.Tracing.AddSpanEvent(ctx, "send.failed", attribute.String("error", err.Error()))
		return &rverrors.SendError{EventID: evt.ID(), Attempt: n, Err: err}
	}
	return nil
}

func (a *Async) deadLetter(evt *event.Event, cause error, attempts int) {
	if a.cfg.DeadLetters == nil {
		return
	}
	rec, err := deadletter.NewRecord(evt, cause, attempts)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), deadLetterTimeout)
		err = a.cfg.DeadLetters.Save(ctx, rec)
		cancel()
	}
	if err != nil {
		observability.LogDeadLetterError(a.cfg.Logger, evt.ID(), err)
	}
}

func (a *Async) drop(evt *event.Event, reason string, err error) {
	a.cfg.Metrics.RecordDrop(context.Background(), reason)
	observability.LogEventDropped(a.cfg.Logger, evt.ID(), reason)
	if a.cfg.OnDrop != nil {
		a.cfg.OnDrop(evt, reason, err)
	}
}

// Close stops accepting events and delivers what is queued within timeout.
// When the timeout expires, in-flight sends are cancelled, the remaining
// events are discarded and ErrDrainTimeout is returned. A zero timeout
// discards immediately. The sender is closed last. Calls after the first
// return nil without waiting.
func (a *Async) Close(timeout time.Duration) error {
	a.mu.Lock()
	if a.State() != StateRunning {
		a.mu.Unlock()
		return nil
	}
	a.state.Store(int32(StateDraining))
	a.mu.Unlock()

	done := observability.TimedOperation()
	sentBefore := a.stats.sent.Load()
	discardedBefore := a.stats.discarded.Load()
	// Without a drain window the queue is emptied before workers are woken,
	// so none of them can pick up a pending event.
	if timeout <= 0 {
		a.abort()
	}
	close(a.draining)

	finished := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(finished)
	}()

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		select {
		case <-finished:
			timer.Stop()
		case <-timer.C:
			a.abort()
		}
	}
	<-finished

	a.state.Store(int32(StateStopped))
	a.cancel()

	var drainErr error
	discarded := a.stats.discarded.Load() - discardedBefore
	if discarded > 0 {
		drainErr = ErrDrainTimeout
	}
	observability.LogTransportClosed(a.cfg.Logger, int(a.stats.sent.Load()-sentBefore), int(discarded), done())

	if err := a.sender.Close(); err != nil {
		return errors.Join(drainErr, fmt.Errorf("close sender: %w", err))
	}
	return drainErr
}

// abort cancels in-flight sends and discards everything still queued.
func (a *Async) abort() {
	a.cancel()

	a.mu.Lock()
	pending := a.queue.drain()
	a.mu.Unlock()

	for _, evt := range pending {
		a.stats.discarded.Add(1)
		a.drop(evt, observability.DropReasonShutdown, context.Canceled)
	}
}
