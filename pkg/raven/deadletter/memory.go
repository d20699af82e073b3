package deadletter

import (
	"context"
	"slices"
	"sync"
)

// DefaultCapacity bounds a MemoryStore created with a non-positive capacity.
const DefaultCapacity = 100

// MemoryStore is a bounded in-memory store. When full, the oldest record
// is evicted. Data is lost when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []Record // oldest first
	capacity int
	closed   bool
}

// NewMemoryStore creates a store holding at most capacity records.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.records = slices.DeleteFunc(m.records, func(r Record) bool {
		return r.EventID == rec.EventID
	})
	if len(m.records) >= m.capacity {
		m.records = slices.Delete(m.records, 0, len(m.records)-m.capacity+1)
	}
	m.records = append(m.records, rec.clone())
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, eventID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}
	for _, r := range m.records {
		if r.EventID == eventID {
			return r.clone(), nil
		}
	}
	return Record{}, ErrNotFound
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	n := len(m.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, n)
	for i := range out {
		out[i] = m.records[i].clone()
	}
	return out, nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.records), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.records = slices.DeleteFunc(m.records, func(r Record) bool {
		return r.EventID == eventID
	})
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	return nil
}
