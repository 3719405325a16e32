package changes

import (
	"fmt"
)

// Handle identifies a node of the retained tree. Root is the implicit
// container every composition renders into.
type Handle int64

// Root is the handle of the tree's implicit root.
const Root Handle = 0

// Op is the kind of a change.
type Op string

const (
	OpInsert       Op = "insert"
	OpRemove       Op = "remove"
	OpMove         Op = "move"
	OpSetAttribute Op = "set_attribute"
)

// Change is one primitive edit.
//
// Field usage per op:
//   - insert: Parent, Child, Index, Type
//   - remove: Parent, Child
//   - move: Parent, Child, From, To
//   - set_attribute: Child, Attr, Value
type Change struct {
	Op     Op     `json:"op"`
	Parent Handle `json:"parent"`
	Child  Handle `json:"child"`
	Type   string `json:"type,omitempty"`
	Index  int    `json:"index,omitempty"`
	From   int    `json:"from,omitempty"`
	To     int    `json:"to,omitempty"`
	Attr   string `json:"attr,omitempty"`
	Value  any    `json:"value,omitempty"`
}

// Insert creates a change inserting child under parent at index.
func Insert(parent, child Handle, index int, typ string) Change {
	return Change{Op: OpInsert, Parent: parent, Child: child, Index: index, Type: typ}
}

// Remove creates a change detaching child from parent.
func Remove(parent, child Handle) Change {
	return Change{Op: OpRemove, Parent: parent, Child: child}
}

// Move creates a change moving child within parent.
func Move(parent, child Handle, from, to int) Change {
	return Change{Op: OpMove, Parent: parent, Child: child, From: from, To: to}
}

// SetAttribute creates a change updating an attribute of node.
func SetAttribute(node Handle, attr string, value any) Change {
	return Change{Op: OpSetAttribute, Child: node, Attr: attr, Value: value}
}

func (c Change) String() string {
	switch c.Op {
	case OpInsert:
		return fmt.Sprintf("insert %d/%d@%d %s", c.Parent, c.Child, c.Index, c.Type)
	case OpRemove:
		return fmt.Sprintf("remove %d/%d", c.Parent, c.Child)
	case OpMove:
		return fmt.Sprintf("move %d/%d %d->%d", c.Parent, c.Child, c.From, c.To)
	case OpSetAttribute:
		return fmt.Sprintf("set %d.%s=%v", c.Child, c.Attr, c.Value)
	}
	return fmt.Sprintf("%s %d", c.Op, c.Child)
}

// List is an ordered change list.
type List []Change

// Count returns the number of changes with the given op.
func (l List) Count(op Op) int {
	n := 0
	for _, c := range l {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Touches returns the set of handles the list edits, parents included.
func (l List) Touches() map[Handle]struct{} {
	out := make(map[Handle]struct{})
	for _, c := range l {
		out[c.Child] = struct{}{}
		if c.Op != OpSetAttribute {
			out[c.Parent] = struct{}{}
		}
	}
	return out
}

// Strings renders each change.
func (l List) Strings() []string {
	out := make([]string, len(l))
	for i, c := range l {
		out[i] = c.String()
	}
	return out
}
