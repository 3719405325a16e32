package changes

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/xlab/treeprint"
)

// OrderingError reports a change that references a handle in the wrong state:
// not yet inserted, already removed, or at an index it does not occupy.
type OrderingError struct {
	Change Change
	Msg    string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("change out of order (%s): %s", e.Change, e.Msg)
}

// Node is a node of the reference tree.
type Node struct {
	Handle   Handle
	Type     string
	Parent   Handle
	Children []Handle
	Attrs    map[string]any
}

// Tree is a reference retained tree. It applies changes strictly and rejects
// any that violate change-list ordering. It is safe for concurrent use.
type Tree struct {
	mu    sync.Mutex
	nodes map[Handle]*Node
}

// NewTree returns a tree holding only Root.
func NewTree() *Tree {
	return &Tree{nodes: map[Handle]*Node{
		Root: {Handle: Root, Type: "root", Attrs: map[string]any{}},
	}}
}

// Apply mutates the tree.
func (t *Tree) Apply(c Change) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fail := func(format string, args ...any) error {
		return &OrderingError{Change: c, Msg: fmt.Sprintf(format, args...)}
	}

	switch c.Op {
	case OpInsert:
		parent, ok := t.nodes[c.Parent]
		if !ok {
			return fail("parent %d does not exist", c.Parent)
		}
		if _, live := t.nodes[c.Child]; live {
			return fail("handle %d is already in the tree", c.Child)
		}
		if c.Index < 0 || c.Index > len(parent.Children) {
			return fail("index %d outside [0,%d]", c.Index, len(parent.Children))
		}
		t.nodes[c.Child] = &Node{Handle: c.Child, Type: c.Type, Parent: c.Parent, Attrs: map[string]any{}}
		parent.Children = slices.Insert(parent.Children, c.Index, c.Child)

	case OpRemove:
		parent, ok := t.nodes[c.Parent]
		if !ok {
			return fail("parent %d does not exist", c.Parent)
		}
		i := slices.Index(parent.Children, c.Child)
		if i < 0 {
			return fail("handle %d is not a child of %d", c.Child, c.Parent)
		}
		parent.Children = slices.Delete(parent.Children, i, i+1)
		t.drop(c.Child)

	case OpMove:
		parent, ok := t.nodes[c.Parent]
		if !ok {
			return fail("parent %d does not exist", c.Parent)
		}
		n := len(parent.Children)
		if c.From < 0 || c.From >= n || parent.Children[c.From] != c.Child {
			return fail("handle %d is not at index %d of %d", c.Child, c.From, c.Parent)
		}
		if c.To < 0 || c.To >= n {
			return fail("target index %d outside [0,%d)", c.To, n)
		}
		parent.Children = slices.Delete(parent.Children, c.From, c.From+1)
		parent.Children = slices.Insert(parent.Children, c.To, c.Child)

	case OpSetAttribute:
		node, ok := t.nodes[c.Child]
		if !ok {
			return fail("handle %d does not exist", c.Child)
		}
		node.Attrs[c.Attr] = c.Value

	default:
		return fail("unknown op %q", c.Op)
	}
	return nil
}

// drop forgets a detached subtree.
func (t *Tree) drop(h Handle) {
	n, ok := t.nodes[h]
	if !ok {
		return
	}
	for _, c := range n.Children {
		t.drop(c)
	}
	delete(t.nodes, h)
}

// Node returns a copy of the node for h.
func (t *Tree) Node(h Handle) (Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[h]
	if !ok {
		return Node{}, false
	}
	cp := *n
	cp.Children = slices.Clone(n.Children)
	cp.Attrs = maps.Clone(n.Attrs)
	return cp, true
}

// Children returns the children of h in order.
func (t *Tree) Children(h Handle) []Handle {
	n, _ := t.Node(h)
	return n.Children
}

// Len returns the number of nodes, Root excluded.
func (t *Tree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes) - 1
}

// Shape renders the tree's structure as nested node types, for example
// "root(list(item,item))". Attributes are omitted.
func (t *Tree) Shape() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b strings.Builder
	t.shape(&b, Root)
	return b.String()
}

func (t *Tree) shape(b *strings.Builder, h Handle) {
	n := t.nodes[h]
	b.WriteString(n.Type)
	if len(n.Children) == 0 {
		return
	}
	b.WriteByte('(')
	for i, c := range n.Children {
		if i > 0 {
			b.WriteByte(',')
		}
		t.shape(b, c)
	}
	b.WriteByte(')')
}

// String prints the tree with attributes.
func (t *Tree) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	tree := treeprint.NewWithRoot("root")
	for _, c := range t.nodes[Root].Children {
		t.print(tree, c)
	}
	return tree.String()
}

func (t *Tree) print(branch treeprint.Tree, h Handle) {
	n := t.nodes[h]
	label := fmt.Sprintf("%s#%d", n.Type, n.Handle)
	if len(n.Attrs) > 0 {
		parts := make([]string, 0, len(n.Attrs))
		for _, k := range slices.Sorted(maps.Keys(n.Attrs)) {
			parts = append(parts, fmt.Sprintf("%s=%v", k, n.Attrs[k]))
		}
		label += " " + strings.Join(parts, " ")
	}
	if len(n.Children) == 0 {
		branch.AddNode(label)
		return
	}
	sub := branch.AddBranch(label)
	for _, c := range n.Children {
		t.print(sub, c)
	}
}
