package slots

import (
	"fmt"
)

// GroupAt returns the group starting at position i.
func (t *Table) GroupAt(i int) Group {
	s := t.Get(i)
	if s.Kind != KindGroupStart {
		t.fail("group", i, "not a group start")
	}
	return Group{
		Key:    s.Key,
		Kind:   s.Group,
		Start:  i,
		Size:   s.Size,
		Nodes:  s.Nodes,
		Node:   s.Node,
		Anchor: s.Anchor,
		Parent: s.Parent,
		Aux:    s.Aux,
	}
}

// Children returns the direct child groups of the group at start.
func (t *Table) Children(start int) []Group {
	g := t.GroupAt(start)
	return t.groupsIn(start+1, g.End())
}

// Roots returns the top-level groups.
func (t *Table) Roots() []Group {
	return t.groupsIn(0, t.Len())
}

func (t *Table) groupsIn(from, to int) []Group {
	var out []Group
	for i := from; i < to; {
		if t.Get(i).Kind != KindGroupStart {
			i++
			continue
		}
		g := t.GroupAt(i)
		out = append(out, g)
		i = g.End() + 1
	}
	return out
}

// Groups returns every group in pre-order.
func (t *Table) Groups() []Group {
	var out []Group
	for i := 0; i < t.Len(); i++ {
		if t.Get(i).Kind == KindGroupStart {
			out = append(out, t.GroupAt(i))
		}
	}
	return out
}

// DataSlots counts the value slots directly inside the group at start.
func (t *Table) DataSlots(start int) int {
	g := t.GroupAt(start)
	n := 0
	for i := start + 1; i < g.End(); {
		s := t.Get(i)
		if s.Kind == KindGroupStart {
			i += s.Size + 1
			continue
		}
		if s.Kind == KindValue {
			n++
		}
		i++
	}
	return n
}

// Snapshot copies the table's slots in logical order.
func (t *Table) Snapshot() []Slot {
	out := make([]Slot, 0, t.Len())
	out = append(out, t.buf[:t.gapStart]...)
	return append(out, t.buf[t.gapStart+t.gapLen:]...)
}

// Validate checks that the table holds a fully-closed forest: every
// GroupStart is matched by a GroupEnd at start+Size, groups nest without
// overlap, every group's anchor resolves to its position and every group's
// parent anchor names the enclosing group.
func (t *Table) Validate() error {
	type frame struct {
		start, end int
		anchor     Anchor
	}
	var stack []frame
	n := t.Len()
	for i := 0; i < n; i++ {
		s := t.Get(i)
		switch s.Kind {
		case KindGroupStart:
			if s.Size < 1 {
				return &ValidationError{Pos: i, Msg: fmt.Sprintf("group size %d", s.Size)}
			}
			end := i + s.Size
			if end >= n {
				return &ValidationError{Pos: i, Msg: fmt.Sprintf("group end %d beyond table", end)}
			}
			parent := NoAnchor
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				if end >= top.end {
					return &ValidationError{Pos: i, Msg: fmt.Sprintf("group end %d overlaps parent end %d", end, top.end)}
				}
				parent = top.anchor
			}
			if t.Location(s.Anchor) != i {
				return &ValidationError{Pos: i, Msg: fmt.Sprintf("anchor %d resolves to %d", s.Anchor, t.Location(s.Anchor))}
			}
			if s.Parent != parent {
				return &ValidationError{Pos: i, Msg: fmt.Sprintf("parent anchor %d, enclosing group has %d", s.Parent, parent)}
			}
			stack = append(stack, frame{start: i, end: end, anchor: s.Anchor})
		case KindGroupEnd:
			if len(stack) == 0 || stack[len(stack)-1].end != i {
				return &ValidationError{Pos: i, Msg: "unmatched group end"}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return &ValidationError{Pos: stack[len(stack)-1].start, Msg: "unclosed group"}
	}
	return nil
}
