package errors

import (
	"fmt"
	"time"
)

// HTTPError represents a non-2xx response from the collector.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string

	// RetryAfter is the wait requested by the collector, zero when absent.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// RetryAfterHint implements RetryAfterHinter.
func (e *HTTPError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

// TimeoutError indicates an operation timed out.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}

// SendError records a single failed delivery attempt of one event.
type SendError struct {
	EventID string
	Attempt int
	Err     error
}

// Error implements the error interface.
func (e *SendError) Error() string {
	return fmt.Sprintf("send event %s (attempt %d): %v", e.EventID, e.Attempt, e.Err)
}

// Unwrap returns the underlying error.
func (e *SendError) Unwrap() error {
	return e.Err
}

// RetryAfterHinter is implemented by errors that carry a minimum wait
// before the next attempt, such as a rate-limited HTTP response.
type RetryAfterHinter interface {
	RetryAfterHint() time.Duration
}
