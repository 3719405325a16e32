// Package state tracks which recomposition scopes read which state cells.
//
// A Tracker maps every state cell to the set of scopes that read it during
// their last execution. Writing a cell marks all of its readers Invalid in
// one step and records them as pending work for the composition that owns
// them. Re-executing a scope first clears its previous reads so that
// branches no longer taken shed their dependencies.
//
// Scope lifecycle:
//
//	Valid --write to read state--> Invalid --re-executed--> Valid
//	Valid|Invalid --owning group removed--> Disposed (terminal)
//
// The Tracker is the only structure shared between compositions. Reader sets
// are striped across shards so writes from arbitrary goroutines do not
// serialize against reads recorded by composition passes.
package state
