// Package series provides a bounded FIFO series backed by a preallocated
// circular buffer. Appending is O(1); once the configured capacity is
// reached the oldest element is evicted. Used for the rolling price and
// bar histories the indicator library computes over.
package series

// Series holds the most recent N elements in insertion order.
type Series[T any] struct {
	buf  []T
	head int // index of the oldest element
	n    int // current length
}

// New creates a bounded series. Capacity must be at least 1.
func New[T any](capacity int) *Series[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Series[T]{
		buf: make([]T, capacity),
	}
}

// Push appends v, evicting the oldest element if the series is full.
func (s *Series[T]) Push(v T) {
	if s.n < len(s.buf) {
		s.buf[(s.head+s.n)%len(s.buf)] = v
		s.n++
		return
	}
	// Full: overwrite the oldest slot and advance the head.
	s.buf[s.head] = v
	s.head = (s.head + 1) % len(s.buf)
}

// Len returns the current number of elements.
func (s *Series[T]) Len() int { return s.n }

// Cap returns the configured capacity.
func (s *Series[T]) Cap() int { return len(s.buf) }

// At returns the i-th element, oldest first. Panics if out of range,
// matching slice semantics.
func (s *Series[T]) At(i int) T {
	if i < 0 || i >= s.n {
		panic("series: index out of range")
	}
	return s.buf[(s.head+i)%len(s.buf)]
}

// Last returns the most recent element. ok is false if the series is empty.
func (s *Series[T]) Last() (v T, ok bool) {
	if s.n == 0 {
		return v, false
	}
	return s.At(s.n - 1), true
}

// Values returns a copy of the elements, oldest first. The series itself
// is never handed out, so callers cannot mutate the history.
func (s *Series[T]) Values() []T {
	out := make([]T, s.n)
	for i := 0; i < s.n; i++ {
		out[i] = s.At(i)
	}
	return out
}
