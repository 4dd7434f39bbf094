// Package dispatch provides the single-owner event queue.
//
// Producers on any goroutine Post functions; one owner goroutine runs them
// in FIFO order through Run. State mutated only from posted functions needs
// no further locking.
package dispatch

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("dispatch queue is closed")

// Queue is an unbounded FIFO of functions run by a single owner goroutine.
// Post never blocks, so posting from inside a running function is safe.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	// wake has a buffer of one; a pending signal is enough to rescan the queue.
	wake chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Post enqueues fn. It returns false if the queue is closed.
func (q *Queue) Post(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()

		return false
	}

	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	q.signal()

	return true
}

// Do posts fn and waits until the owner ran it or ctx is done.
// It must not be called from the owner goroutine.
func (q *Queue) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})

	if !q.Post(func() {
		defer close(done)

		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted functions until ctx is done or the queue is closed and drained.
// Only one goroutine may call Run.
func (q *Queue) Run(ctx context.Context) error {
	for {
		batch, closed := q.take()
		for _, fn := range batch {
			fn()
		}

		if len(batch) > 0 {
			continue
		}

		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		}
	}
}

// Close stops accepting new functions. Already posted ones still run.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

// Len returns the number of functions waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

func (q *Queue) take() ([]func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := q.pending
	q.pending = nil

	return batch, q.closed
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
