// Package slots implements the slot buffer: a flat, gap-buffer-backed array
// of typed slots that records the execution trace of a composition.
//
// A trace is a forest of groups. Each group is a GroupStart slot followed by
// its content (value slots and nested groups) and closed by a GroupEnd slot
// at start+Size. Groups never overlap.
//
// Positions shift as groups are inserted, removed and moved. Code that must
// find a group again later holds an Anchor instead: a stable id resolved
// through an indirection table that the buffer updates whenever it
// physically relocates a slot.
//
// Edits may be journaled. Between Begin and Commit every insert, remove,
// move and set is recorded so that Rollback can restore the buffer to any
// earlier Mark. Removed slots are handed to the disposer only on Commit.
//
// A Table is not safe for concurrent use. The composer guarantees a single
// writer per table.
package slots
