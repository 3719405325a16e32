package compose

import (
	"github.com/roach88/recompose/internal/slots"
	"github.com/roach88/recompose/internal/state"
)

// Content is a tree-producing computation.
type Content func(c *Composer)

// Scope is a recomposition scope: a restartable region owned by a scope
// group. It remembers the content that last ran so it can be re-entered on
// its own when state it read changes.
type Scope struct {
	id     state.ScopeID
	anchor slots.Anchor
	block  Content
	deps   []any
}

// ID returns the tracker id of the scope.
func (s *Scope) ID() state.ScopeID { return s.id }

// Anchor returns the anchor of the owning group.
func (s *Scope) Anchor() slots.Anchor { return s.anchor }

func depsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !state.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Disposable is implemented by remembered values that hold resources. The
// composition disposes them when their slot leaves the table.
type Disposable interface {
	Dispose()
}
