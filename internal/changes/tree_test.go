package changes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeAppliesOrderedList(t *testing.T) {
	tree := NewTree()
	list := List{
		Insert(Root, 1, 0, "list"),
		Insert(1, 2, 0, "item"),
		SetAttribute(2, "text", "a"),
		Insert(1, 3, 1, "item"),
		SetAttribute(3, "text", "b"),
	}
	require.NoError(t, ApplyAll(tree, list))

	assert.Equal(t, "root(list(item,item))", tree.Shape())
	assert.Equal(t, []Handle{2, 3}, tree.Children(1))
	n, ok := tree.Node(3)
	require.True(t, ok)
	assert.Equal(t, "b", n.Attrs["text"])
	assert.Equal(t, 3, tree.Len())
	assert.Contains(t, tree.String(), "item#2 text=a")
}

func TestTreeMoveAndRemove(t *testing.T) {
	tree := NewTree()
	require.NoError(t, ApplyAll(tree, List{
		Insert(Root, 1, 0, "a"),
		Insert(Root, 2, 1, "b"),
		Insert(Root, 3, 2, "c"),
		Insert(3, 4, 0, "leaf"),
	}))

	require.NoError(t, tree.Apply(Move(Root, 3, 2, 0)))
	assert.Equal(t, []Handle{3, 1, 2}, tree.Children(Root))

	require.NoError(t, tree.Apply(Remove(Root, 3)))
	_, ok := tree.Node(4)
	assert.False(t, ok, "removing a node drops its subtree")

	// A freed handle may be inserted again after its removal.
	require.NoError(t, tree.Apply(Insert(Root, 3, 0, "c")))
}

func TestTreeRejectsOrderingViolations(t *testing.T) {
	tests := []struct {
		name   string
		change Change
	}{
		{"unknown parent", Insert(9, 10, 0, "x")},
		{"duplicate handle", Insert(Root, 1, 0, "x")},
		{"index out of range", Insert(Root, 10, 5, "x")},
		{"remove missing child", Remove(Root, 10)},
		{"move wrong from", Move(Root, 1, 1, 0)},
		{"move bad target", Move(Root, 1, 0, 3)},
		{"attribute on missing node", SetAttribute(42, "x", 1)},
		{"unknown op", Change{Op: "explode"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := NewTree()
			require.NoError(t, tree.Apply(Insert(Root, 1, 0, "a")))
			err := tree.Apply(tt.change)
			var oe *OrderingError
			assert.True(t, errors.As(err, &oe))
		})
	}
}

func TestListHelpers(t *testing.T) {
	list := List{
		Move(Root, 1, 2, 0),
		SetAttribute(5, "x", 1),
		Move(Root, 2, 2, 1),
	}
	assert.Equal(t, 2, list.Count(OpMove))
	assert.Equal(t, 0, list.Count(OpInsert))
	assert.Equal(t, map[Handle]struct{}{Root: {}, 1: {}, 2: {}, 5: {}}, list.Touches())
	assert.Equal(t, []string{"move 0/1 2->0", "set 5.x=1", "move 0/2 2->1"}, list.Strings())
}

func TestRecorderAndMulti(t *testing.T) {
	rec := &Recorder{}
	tree := NewTree()
	failing := ApplierFunc(func(Change) error { return errors.New("backend down") })

	err := Multi{rec, tree, failing}.Apply(Insert(Root, 1, 0, "a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
	assert.Len(t, rec.Changes(), 1)
	assert.Equal(t, 1, tree.Len(), "every applier sees the change")

	assert.Len(t, rec.Take(), 1)
	assert.Empty(t, rec.Changes())
}

func TestApplyAllStopsAtFirstError(t *testing.T) {
	tree := NewTree()
	err := ApplyAll(tree, List{Insert(Root, 1, 0, "a"), Remove(Root, 7), Insert(Root, 2, 1, "b")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "change 1")
	assert.Equal(t, 1, tree.Len())
}
