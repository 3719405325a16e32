package recomposer

import (
	"sync"

	"github.com/roach88/recompose/internal/state"
)

// ownerQueue is a thread-safe FIFO of compositions awaiting recomposition.
//
// An owner is queued at most once: notifications for an owner already
// waiting coalesce. The signal channel lets the Run loop wait on the queue
// and a context together.
type ownerQueue struct {
	mu     sync.Mutex
	owners []state.OwnerID
	queued map[state.OwnerID]struct{}
	closed bool
	signal chan struct{}
}

func newOwnerQueue() *ownerQueue {
	return &ownerQueue{
		owners: make([]state.OwnerID, 0, 16),
		queued: make(map[state.OwnerID]struct{}),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds owner to the back of the queue unless it is already waiting.
// Returns false if the queue is closed.
func (q *ownerQueue) Enqueue(owner state.OwnerID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, ok := q.queued[owner]; ok {
		return true
	}
	q.queued[owner] = struct{}{}
	q.owners = append(q.owners, owner)

	// Buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Drain removes and returns every waiting owner in FIFO order.
func (q *ownerQueue) Drain() []state.OwnerID {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.owners) == 0 {
		return nil
	}
	out := q.owners
	q.owners = make([]state.OwnerID, 0, cap(out))
	clear(q.queued)
	return out
}

// Wait returns a channel that signals when owners may be available. It is
// closed by Close.
func (q *ownerQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of waiting owners.
func (q *ownerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.owners)
}

// Closed reports whether Close was called.
func (q *ownerQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting owners and wakes waiters.
func (q *ownerQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
