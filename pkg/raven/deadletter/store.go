// Package deadletter keeps events that could not be delivered, for
// inspection. Nothing is ever re-sent from a store.
package deadletter

import (
	"context"
	"errors"
)

// Store persists dead-lettered events.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a record. A record with the same EventID is replaced and
	// moves to the back of the list.
	Save(ctx context.Context, rec Record) error

	// Get retrieves a record. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, eventID string) (Record, error)

	// List returns up to limit records, oldest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Delete removes a record. Returns nil if it doesn't exist.
	Delete(ctx context.Context, eventID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("dead letter not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("dead letter store closed")
)
