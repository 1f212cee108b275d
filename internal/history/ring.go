// Package history keeps the bounded observation sequences derived from the
// pose estimator: obstacle points, temperature labels and the driven trail.
package history

// DefaultCap is the number of records kept per sequence when no cap is
// configured. It is far larger than a typical session produces.
const DefaultCap = 2500

// Ring is a bounded FIFO. Once full, each Push evicts the oldest element.
// The zero value is not usable; construct with NewRing.
type Ring[T any] struct {
	buf   []T
	start int
	n     int
}

// NewRing returns a ring holding at most capacity elements. A non-positive
// capacity selects DefaultCap.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v and reports whether an element was evicted to make room.
func (r *Ring[T]) Push(v T) (evicted bool) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return false
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return true
}

// Len returns the number of retained elements.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the maximum number of retained elements.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Items returns a copy of the retained elements, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
