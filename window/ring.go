// Package window provides the bounded rolling windows each tier keeps per tracked entity.
package window

// Ring is a fixed-capacity FIFO. Once full, every Push evicts the oldest item.
// A Ring is not safe for concurrent use; Store wraps rings with a lock.
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest item
	size int
}

// NewRing returns an empty ring. Capacities below 1 are raised to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends item, evicting the oldest item when the ring is full.
func (r *Ring[T]) Push(item T) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = item
		r.size++
		return
	}
	r.buf[r.head] = item
	r.head = (r.head + 1) % len(r.buf)
}

// Last returns a copy of the most recent n items, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	start := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+start+i)%len(r.buf)]
	}
	return out
}

// Items returns a copy of every stored item, oldest first.
func (r *Ring[T]) Items() []T {
	return r.Last(r.size)
}

// Newest returns the most recently pushed item.
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.buf[(r.head+r.size-1)%len(r.buf)], true
}

func (r *Ring[T]) Len() int { return r.size }

func (r *Ring[T]) Cap() int { return len(r.buf) }

// Reset drops every item but keeps the capacity.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.size = 0
}
