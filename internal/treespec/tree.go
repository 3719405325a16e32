package treespec

import (
	"maps"
	"slices"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/ir"
)

// TreeValue converts a retained tree into a canonical value: each node is
// an object with type, attrs and children. Handles are omitted, so two
// trees with the same shape and attributes produce equal values.
func TreeValue(t *changes.Tree) ir.Value {
	var conv func(h changes.Handle) ir.Value
	conv = func(h changes.Handle) ir.Value {
		n, _ := t.Node(h)
		attrs := ir.Object{}
		for _, name := range slices.Sorted(maps.Keys(n.Attrs)) {
			if v := n.Attrs[name]; v != nil {
				attrs[name] = ir.FromGoLoose(v)
			}
		}
		children := ir.List{}
		for _, c := range n.Children {
			children = append(children, conv(c))
		}
		return ir.Object{
			"type":     ir.String(n.Type),
			"attrs":    attrs,
			"children": children,
		}
	}
	return conv(changes.Root)
}

// TreeDigest is the content digest of TreeValue.
func TreeDigest(t *changes.Tree) (string, error) {
	return ir.Hash(ir.DomainTree, TreeValue(t))
}
