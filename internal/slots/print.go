package slots

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// String renders the group forest for debugging.
func (t *Table) String() string {
	tree := treeprint.NewWithRoot(fmt.Sprintf("slots len=%d gap=%d", t.Len(), t.gapStart))
	t.print(tree, 0, t.Len())
	return tree.String()
}

func (t *Table) print(branch treeprint.Tree, from, to int) {
	for i := from; i < to; {
		s := t.Get(i)
		switch s.Kind {
		case KindGroupStart:
			label := fmt.Sprintf("[%d] %s %s size=%d nodes=%d", i, s.Group, s.Key, s.Size, s.Nodes)
			if s.Group == GroupNode {
				label += fmt.Sprintf(" handle=%d", s.Node)
			}
			t.print(branch.AddBranch(label), i+1, i+s.Size)
			i += s.Size + 1
		case KindValue:
			branch.AddNode(fmt.Sprintf("[%d] %v", i, s.Value))
			i++
		default:
			branch.AddNode(fmt.Sprintf("[%d] stray end", i))
			i++
		}
	}
}
