package state

import (
	"sync"
	"sync/atomic"
)

// Observer receives the reads made through a cell. The composer implements
// it by attributing each read to the scope currently executing.
type Observer interface {
	RecordRead(StateID)
}

// Cell is an observable mutable value.
//
// Reads through Get register the observing scope as a reader. Writes through
// Set invalidate every registered reader. Writes of a value equal to the
// current one are dropped.
type Cell[T any] struct {
	id      StateID
	tracker *Tracker
	equal   func(a, b T) bool

	mu    sync.RWMutex
	value T

	disposed atomic.Bool
}

// CellOption configures a Cell.
type CellOption[T any] func(*Cell[T])

// WithEqual replaces the equality used to drop redundant writes.
func WithEqual[T any](fn func(a, b T) bool) CellOption[T] {
	return func(c *Cell[T]) {
		c.equal = fn
	}
}

// NewCell creates a cell tracked by tracker.
func NewCell[T any](tracker *Tracker, initial T, opts ...CellOption[T]) *Cell[T] {
	c := &Cell[T]{
		id:      tracker.NewStateID(),
		tracker: tracker,
		value:   initial,
		equal:   func(a, b T) bool { return Equal(a, b) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the cell's state id.
func (c *Cell[T]) ID() StateID { return c.id }

// Get returns the current value and records the read with obs.
// A nil observer reads without tracking.
func (c *Cell[T]) Get(obs Observer) T {
	// The read edge is recorded before the value is loaded so a concurrent
	// writer either sees this reader or this read sees the written value.
	if obs != nil && !c.disposed.Load() {
		obs.RecordRead(c.id)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Peek returns the current value without tracking.
func (c *Cell[T]) Peek() T {
	return c.Get(nil)
}

// Set stores v and invalidates readers. Reports whether the value changed.
func (c *Cell[T]) Set(v T) bool {
	return c.Update(func(T) T { return v })
}

// Update stores fn(current) atomically with respect to other writers.
func (c *Cell[T]) Update(fn func(T) T) bool {
	c.mu.Lock()
	next := fn(c.value)
	if c.equal(c.value, next) {
		c.mu.Unlock()
		return false
	}
	c.value = next
	c.mu.Unlock()

	if !c.disposed.Load() {
		c.tracker.NotifyWrite(c.id)
	}
	return true
}

// Dispose detaches the cell from the tracker. Later writes notify nobody.
// Dispose is idempotent.
func (c *Cell[T]) Dispose() {
	if c.disposed.CompareAndSwap(false, true) {
		c.tracker.ForgetState(c.id)
	}
}

// Disposed reports whether Dispose was called.
func (c *Cell[T]) Disposed() bool {
	return c.disposed.Load()
}
