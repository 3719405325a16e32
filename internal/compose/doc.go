// Package compose implements the composer: the traversal protocol that
// records the execution trace of tree-producing content into a slot table,
// memoizes regions of it and re-executes only what changed.
//
// Content is a plain function over an explicit *Composer handle:
//
//	comp.Compose(ctx, func(c *compose.Composer) {
//		c.Node(slots.K("list"), "list", func(c *compose.Composer) {
//			for _, item := range items {
//				c.Scope(slots.KX("item", item.ID), func(c *compose.Composer) {
//					c.Node(slots.K("row"), "row", func(c *compose.Composer) {
//						c.Attr("text", item.Text)
//					})
//				}, item)
//			}
//		})
//	})
//
// Each pass diffs while it records. The cursor advances through the previous
// trace in place: the slots behind it are the new trace, the slots ahead of
// it the unconsumed old one. At every group start the composer either
// reuses the old group at the cursor, moves an explicitly keyed group found
// further ahead, or inserts a new one; old content left unconsumed when a
// group ends is removed. Every structural decision appends edits to the
// pass's change list, which is handed to the Applier once the pass commits.
//
// Scopes are restartable regions. A scope whose inputs are unchanged and
// whose recorded state reads have not been invalidated is skipped in O(1).
// Invalidated scopes are later re-entered individually, in document order,
// without re-running their ancestors.
//
// Group, Scope and Node calls are failure boundaries: a panic inside one
// rolls that region back to its previous trace and the pass continues with
// the next sibling. Protocol violations roll back the whole pass and panic.
//
// A Composition allows one pass at a time. Separate compositions may run
// concurrently; they share only the state.Tracker.
package compose
