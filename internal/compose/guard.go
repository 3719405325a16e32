package compose

import (
	"fmt"

	"github.com/roach88/recompose/internal/state"
)

// passGuard bounds the work one pass may do while draining pending scopes.
//
// Two limits together guarantee the drain terminates even when content
// writes state that invalidates scopes of the same pass:
//   - a scope is re-entered at most once per pass (cycle detection)
//   - the pass performs at most maxReentries re-entries (quota)
//
// Scopes stopped by either limit stay pending for the next pass.
type passGuard struct {
	pass         string
	maxReentries int
	reentries    int
	entered      map[state.ScopeID]bool
	blocked      map[state.ScopeID]bool
}

func newPassGuard(pass string, maxReentries int) *passGuard {
	return &passGuard{
		pass:         pass,
		maxReentries: maxReentries,
		entered:      make(map[state.ScopeID]bool),
		blocked:      make(map[state.ScopeID]bool),
	}
}

// check reports whether scope may be re-entered now. A non-nil error
// describes why not; after a quota error no further re-entries are allowed.
func (g *passGuard) check(scope state.ScopeID) error {
	if g.entered[scope] {
		g.blocked[scope] = true
		return &PassError{
			Code:    ErrCodeCycleDetected,
			Message: fmt.Sprintf("scope %d invalidated again after re-entry", scope),
			Pass:    g.pass,
			Scope:   scope,
		}
	}
	if g.maxReentries > 0 && g.reentries >= g.maxReentries {
		return &PassError{
			Code:    ErrCodeQuotaExceeded,
			Message: fmt.Sprintf("pass exceeded max re-entries (%d >= %d)", g.reentries, g.maxReentries),
			Pass:    g.pass,
			Scope:   scope,
			Details: map[string]string{
				"reentries":     fmt.Sprintf("%d", g.reentries),
				"max_reentries": fmt.Sprintf("%d", g.maxReentries),
			},
		}
	}
	return nil
}

// allowed reports whether scope is still eligible in this pass.
func (g *passGuard) allowed(scope state.ScopeID) bool {
	return !g.blocked[scope]
}

func (g *passGuard) record(scope state.ScopeID) {
	g.entered[scope] = true
	g.reentries++
}
