package router

import "sync"

// RingBuffer is an unbounded thread-safe FIFO. It starts at a fixed
// capacity and doubles when full, so producers never block or drop;
// backpressure shows up in the stats instead.
type RingBuffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	tail   int
	count  int
	closed bool

	enqueued int64
	dequeued int64
	grows    int
	peak     int
}

// NewRingBuffer creates a buffer with the given initial capacity.
func NewRingBuffer[T any](initialCapacity int) *RingBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &RingBuffer[T]{items: make([]T, initialCapacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push appends an item, growing the buffer if it is full. Returns
// false once the buffer is closed.
func (b *RingBuffer[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	if b.count == len(b.items) {
		b.grow()
	}

	b.items[b.tail] = item
	b.tail = (b.tail + 1) % len(b.items)
	b.count++
	b.enqueued++
	if b.count > b.peak {
		b.peak = b.count
	}

	b.cond.Signal()
	return true
}

// Pop removes and returns the oldest item, blocking until one is
// available. Returns false when the buffer is closed and drained.
func (b *RingBuffer[T]) Pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// TryPop removes the oldest item without blocking.
func (b *RingBuffer[T]) TryPop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// Drain removes up to max items (all items when max <= 0) without
// blocking. Used by batch consumers.
func (b *RingBuffer[T]) Drain(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = b.popLocked()
	}
	return out
}

// Close marks the buffer closed. Pending items remain poppable;
// blocked Pop calls wake up.
func (b *RingBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of buffered items.
func (b *RingBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns a snapshot of buffer counters.
func (b *RingBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Len:      b.count,
		Cap:      len(b.items),
		Enqueued: b.enqueued,
		Dequeued: b.dequeued,
		Grows:    b.grows,
		Peak:     b.peak,
	}
}

// BufferStats is a snapshot of RingBuffer counters.
type BufferStats struct {
	Len      int
	Cap      int
	Enqueued int64
	Dequeued int64
	Grows    int
	Peak     int
}

func (b *RingBuffer[T]) popLocked() T {
	item := b.items[b.head]
	var zero T
	b.items[b.head] = zero
	b.head = (b.head + 1) % len(b.items)
	b.count--
	b.dequeued++
	return item
}

// grow doubles capacity, relocating items to the front. Lock held.
func (b *RingBuffer[T]) grow() {
	bigger := make([]T, len(b.items)*2)
	if b.head < b.tail || b.count == 0 {
		copy(bigger, b.items[b.head:b.head+b.count])
	} else {
		n := copy(bigger, b.items[b.head:])
		copy(bigger[n:], b.items[:b.tail])
	}
	b.items = bigger
	b.head = 0
	b.tail = b.count
	b.grows++
}
