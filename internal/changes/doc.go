// Package changes defines the change list a composition pass produces and
// the Applier interface through which a renderer consumes it.
//
// A change list is an ordered sequence of primitive edits against a retained
// tree of nodes identified by Handle. Applying the edits in order never
// references a handle before its Insert or after its Remove: a subtree is
// inserted parent first, and removals precede any later reuse.
//
// Tree is a reference retained tree that enforces these rules. Tests and the
// CLI apply change lists to it to check ordering and inspect the result.
package changes
