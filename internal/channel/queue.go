package channel

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Wait once the queue is closed and drained.
var ErrClosed = errors.New("channel: queue closed")

// Queue is an unbounded FIFO safe for many producers and one consumer.
// Push never blocks. After Close, pushes are accepted and discarded.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	seq    uint64
	closed bool
	ready  chan struct{}
}

// NewQueue returns an empty open queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Push appends v. It reports false if the queue was closed and v dropped.
func (q *Queue[T]) Push(v T) bool {
	return q.Stamp(func(uint64) T { return v })
}

// Stamp appends the value built by mk, passing it the next sequence number
// (starting at 1). Numbering and enqueueing happen under one lock, so
// sequence order always equals queue order.
func (q *Queue[T]) Stamp(mk func(seq uint64) T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.seq++
	q.items = append(q.items, mk(q.seq))
	q.mu.Unlock()
	q.signal()
	return true
}

// Pop removes the oldest value without blocking.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head > 64 && q.head*2 > len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true
}

// Ready fires after a push or Close. One signal may stand for several
// values, so consumers drain with Pop before waiting again.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Wait pops the oldest value, blocking until one arrives, the queue is
// closed, or ctx is done.
func (q *Queue[T]) Wait(ctx context.Context) (T, error) {
	for {
		if v, ok := q.Pop(); ok {
			return v, nil
		}
		if q.Closed() {
			var zero T
			return zero, ErrClosed
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close stops accepting values and discards everything still queued.
// It returns the number of discarded values. Closing twice is a no-op.
func (q *Queue[T]) Close() int {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	q.closed = true
	n := len(q.items) - q.head
	q.items = nil
	q.head = 0
	q.mu.Unlock()
	q.signal()
	return n
}

// Closed reports whether Close was called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
