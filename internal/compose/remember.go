package compose

import (
	"github.com/roach88/recompose/internal/state"
)

// remembered is the slot payload written by Remember.
type remembered struct {
	value any
	deps  []any
}

// attr is the slot payload of a node attribute.
type attr struct {
	name  string
	value any
}

// RememberState returns a state cell that survives passes at this
// position. initial runs only when the cell is first created.
func RememberState[T any](c *Composer, initial func() T) *state.Cell[T] {
	v := c.Remember(func() any {
		return state.NewCell(c.tracker, initial())
	})
	return v.(*state.Cell[T])
}

// saved is a state cell registered with the composition's save registry.
type saved[T any] struct {
	cell       *state.Cell[T]
	unregister func()
}

func (s *saved[T]) Dispose() {
	s.unregister()
	s.cell.Dispose()
}

// Saveable is RememberState for state that must outlive the composition.
// The cell starts from the value restored under key when the registry has
// one of type T, and its current value is reported under key by
// SaveRegistry.Snapshot until the cell leaves the composition.
//
// Without a save registry it behaves like RememberState.
func Saveable[T any](c *Composer, key string, initial func() T) *state.Cell[T] {
	v := c.Remember(func() any {
		reg := c.comp.saved
		var value T
		restored := false
		if reg != nil {
			if r, ok := reg.Consume(key); ok {
				value, restored = r.(T)
			}
		}
		if !restored {
			value = initial()
		}
		cell := state.NewCell(c.tracker, value)
		s := &saved[T]{cell: cell, unregister: func() {}}
		if reg != nil {
			s.unregister = reg.Register(key, func() any { return cell.Peek() })
		}
		return s
	}, key)
	return v.(*saved[T]).cell
}
