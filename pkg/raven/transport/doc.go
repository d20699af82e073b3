// Package transport delivers events off the caller's goroutine.
//
// Async owns a bounded FIFO and a pool of workers. Enqueue is non-blocking:
// when the queue is full the configured OverflowPolicy drops either the
// oldest queued event or the incoming one. Workers hand each event to a
// Sender with retries, and events that exhaust their attempts go to an
// optional dead-letter store.
//
//	tr := transport.NewAsync(sender, transport.DefaultConfig())
//	tr.Enqueue(evt)
//	defer tr.Close(5 * time.Second)
//
// Close drains the queue within its timeout. Whatever is still pending when
// the timeout expires is discarded and reported through OnDrop and the
// configured logger and metrics.
package transport
