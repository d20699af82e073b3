package transport

// ring is a fixed-capacity FIFO. It is not safe for concurrent use; Async
// guards it with its mutex.
type ring[T any] struct {
	buf  []T
	head int
	size int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) len() int   { return r.size }
func (r *ring[T]) full() bool { return r.size == len(r.buf) }

// push appends v. The caller must ensure the ring is not full.
func (r *ring[T]) push(v T) {
	r.buf[(r.head+r.size)%len(r.buf)] = v
	r.size++
}

func (r *ring[T]) pop() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return v, true
}

// drain removes and returns everything, oldest first.
func (r *ring[T]) drain() []T {
	out := make([]T, 0, r.size)
	for {
		v, ok := r.pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// items returns the contents, oldest first, without removing them.
func (r *ring[T]) items() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
