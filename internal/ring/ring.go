// Package ring provides a fixed-capacity FIFO buffer.
package ring

// Buffer keeps the most recent Cap() items. Pushing into a full buffer
// evicts the oldest item. Buffer is not safe for concurrent use.
type Buffer[T any] struct {
	items []T
	head  int
	size  int
}

// New returns an empty buffer holding at most capacity items.
// A capacity below 1 is treated as 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v. When the buffer was full, the evicted item is returned
// with ok set to true.
func (b *Buffer[T]) Push(v T) (evicted T, ok bool) {
	c := len(b.items)
	if b.size == c {
		evicted = b.items[b.head]
		ok = true
		b.items[b.head] = v
		b.head = (b.head + 1) % c
		return evicted, ok
	}
	b.items[(b.head+b.size)%c] = v
	b.size++
	return evicted, false
}

// Len returns the number of items held.
func (b *Buffer[T]) Len() int { return b.size }

// Cap returns the maximum number of items.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// Full reports whether Len equals Cap.
func (b *Buffer[T]) Full() bool { return b.size == len(b.items) }

// Items returns a copy of the contents, oldest first.
func (b *Buffer[T]) Items() []T {
	return b.Last(b.size)
}

// Last returns a copy of the n most recent items, oldest first.
// n is clamped to [0, Len()].
func (b *Buffer[T]) Last(n int) []T {
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	c := len(b.items)
	start := b.head + b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.items[(start+i)%c]
	}
	return out
}

// Reset empties the buffer.
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}
