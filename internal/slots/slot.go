package slots

import (
	"fmt"
)

// Kind tags a slot.
type Kind uint8

const (
	KindValue Kind = iota
	KindGroupStart
	KindGroupEnd
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindGroupStart:
		return "start"
	case KindGroupEnd:
		return "end"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// GroupKind classifies a group.
type GroupKind uint8

const (
	// GroupPlain is a memoization region with no further meaning.
	GroupPlain GroupKind = iota

	// GroupScope is a restartable region owning a recomposition scope.
	GroupScope

	// GroupNode emits a node into the change list.
	GroupNode
)

func (k GroupKind) String() string {
	switch k {
	case GroupPlain:
		return "group"
	case GroupScope:
		return "scope"
	case GroupNode:
		return "node"
	}
	return fmt.Sprintf("group(%d)", uint8(k))
}

// Key identifies a group among its siblings: the static call site plus an
// optional explicit key supplied by the caller.
type Key struct {
	Source   string
	Explicit any
}

// K returns a positional key.
func K(source string) Key { return Key{Source: source} }

// KX returns an explicitly keyed key.
func KX(source string, explicit any) Key { return Key{Source: source, Explicit: explicit} }

// HasExplicit reports whether the key carries an explicit component.
func (k Key) HasExplicit() bool { return k.Explicit != nil }

// Equal compares keys. Explicit components that are not comparable never match.
func (k Key) Equal(o Key) bool {
	if k.Source != o.Source {
		return false
	}
	return explicitEqual(k.Explicit, o.Explicit)
}

func explicitEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

func (k Key) String() string {
	if k.Explicit == nil {
		return k.Source
	}
	return fmt.Sprintf("%s#%v", k.Source, k.Explicit)
}

// Anchor is a stable handle to a group position.
// The zero Anchor refers to nothing.
type Anchor int32

// NoAnchor is the zero anchor.
const NoAnchor Anchor = 0

// Slot is one storage cell of the buffer.
//
// Value slots use only Value. GroupStart slots use the header fields; Size is
// the distance to the matching GroupEnd. GroupEnd slots carry nothing.
type Slot struct {
	Kind Kind

	// Value holds the memoized value of a value slot.
	Value any

	Key    Key
	Group  GroupKind
	Parent Anchor
	Anchor Anchor
	Size   int

	// Nodes is the number of top-level nodes emitted inside the group.
	// For a node group it counts the node's direct children.
	Nodes int

	// Node is the handle of a node group.
	Node int64

	// Aux carries the owning recomposition scope or the node type.
	Aux any
}

// ValueSlot returns a value slot holding v.
func ValueSlot(v any) Slot { return Slot{Kind: KindValue, Value: v} }

// GroupSlots returns an empty group: a GroupStart immediately closed by its GroupEnd.
func GroupSlots(key Key, kind GroupKind, parent Anchor) [2]Slot {
	return [2]Slot{
		{Kind: KindGroupStart, Key: key, Group: kind, Parent: parent, Size: 1},
		{Kind: KindGroupEnd},
	}
}

// Group is a logical view over a group's slot range.
type Group struct {
	Key    Key
	Kind   GroupKind
	Start  int
	Size   int
	Nodes  int
	Node   int64
	Anchor Anchor
	Parent Anchor
	Aux    any
}

// End returns the position of the group's GroupEnd slot.
func (g Group) End() int { return g.Start + g.Size }

// Slots returns the number of slots the group occupies, including both markers.
func (g Group) Slots() int { return g.Size + 1 }
