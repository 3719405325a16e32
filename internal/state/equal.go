package state

import (
	"reflect"
)

// Equaler is implemented by values with their own notion of equality.
type Equaler interface {
	Equal(other any) bool
}

// Equal compares two memoized values. It never panics: if the comparison
// itself panics the values are treated as different, which forces
// recomputation instead of aborting the pass.
func Equal(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	if e, ok := a.(Equaler); ok {
		return e.Equal(b)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
