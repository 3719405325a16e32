package treespec

import (
	"cuelang.org/go/cue/token"

	"github.com/roach88/recompose/internal/ir"
)

// Program is a compiled tree file.
type Program struct {
	// State holds the initial value of every state entry.
	State map[string]ir.Value

	// StateNames lists the state entries in declaration order.
	StateNames []string

	Root *NodeSpec
}

// NodeSpec describes one declared node.
type NodeSpec struct {
	// Path is the node's location in the file, such as
	// tree.children[1].children[0]. It doubles as the node's source key.
	Path string

	Type     string
	Key      Expr
	Attrs    []AttrSpec
	Children []*NodeSpec

	// Each, when set, repeats the node once per element of a list.
	Each Expr

	// When, when set, omits the node while it evaluates to a falsy value.
	When Expr

	Pos token.Pos

	// usesItem and usesIndex report whether the node's own expressions or
	// those of descendants outside nested eaches read the loop variables.
	usesItem  bool
	usesIndex bool
}

// AttrSpec is one declared attribute.
type AttrSpec struct {
	Name  string
	Value Expr
}

// Nodes returns the number of declared nodes.
func (p *Program) Nodes() int {
	var count func(n *NodeSpec) int
	count = func(n *NodeSpec) int {
		total := 1
		for _, c := range n.Children {
			total += count(c)
		}
		return total
	}
	if p.Root == nil {
		return 0
	}
	return count(p.Root)
}
