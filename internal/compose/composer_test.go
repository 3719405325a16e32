package compose

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/slots"
	"github.com/roach88/recompose/internal/state"
)

func newComposition(t *testing.T, opts ...Option) (*Composition, *changes.Tree) {
	t.Helper()
	tree := changes.NewTree()
	comp := New(state.NewTracker(), tree, append([]Option{WithName("test"), WithPassIDs(&seqIDs{})}, opts...)...)
	return comp, tree
}

type seqIDs struct{ n int }

func (g *seqIDs) Generate() string {
	g.n++
	return "pass-" + string(rune('0'+g.n%10))
}

// keyedList emits list(item#id...) with one scope per item.
func keyedList(ids ...string) Content {
	return func(c *Composer) {
		c.Node(slots.K("list"), "list", func(c *Composer) {
			for _, id := range ids {
				c.Scope(slots.KX("item", id), func(c *Composer) {
					c.Node(slots.K("row"), "item", func(c *Composer) {
						c.Attr("id", id)
					})
				}, id)
			}
		})
	}
}

func compose(t *testing.T, comp *Composition, content Content) *Result {
	t.Helper()
	res, err := comp.Compose(context.Background(), content)
	require.NoError(t, err)
	require.NoError(t, comp.Table().Validate())
	return res
}

func childIDs(t *testing.T, tree *changes.Tree, parent changes.Handle) []any {
	t.Helper()
	var out []any
	for _, h := range tree.Children(parent) {
		n, ok := tree.Node(h)
		require.True(t, ok)
		out = append(out, n.Attrs["id"])
	}
	return out
}

func listHandle(t *testing.T, tree *changes.Tree) changes.Handle {
	t.Helper()
	roots := tree.Children(changes.Root)
	require.Len(t, roots, 1)
	return roots[0]
}

func TestFirstComposeInsertsPreOrder(t *testing.T) {
	comp, tree := newComposition(t)
	res := compose(t, comp, keyedList("a", "b"))

	assert.Equal(t, []string{
		"insert 0/1@0 list",
		"insert 1/2@0 item",
		"set 2.id=a",
		"insert 1/3@1 item",
		"set 3.id=b",
	}, res.Changes.Strings())
	assert.Equal(t, "root(list(item,item))", tree.Shape())
	assert.Equal(t, 3, res.Executed)
	assert.Equal(t, PassCompose, res.Kind)
	assert.Equal(t, int64(1), res.Seq)
}

func TestComposeIsIdempotent(t *testing.T) {
	comp, _ := newComposition(t)
	compose(t, comp, keyedList("a", "b", "c"))
	before := comp.Table().Snapshot()

	res := compose(t, comp, keyedList("a", "b", "c"))
	assert.Empty(t, res.Changes)
	assert.Equal(t, 1, res.Executed)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, before, comp.Table().Snapshot())
}

func TestReverseKeyedListOnlyMoves(t *testing.T) {
	comp, tree := newComposition(t)
	compose(t, comp, keyedList("a", "b", "c", "d"))

	res := compose(t, comp, keyedList("d", "c", "b", "a"))
	assert.Equal(t, 3, res.Changes.Count(changes.OpMove))
	assert.Zero(t, res.Changes.Count(changes.OpInsert))
	assert.Zero(t, res.Changes.Count(changes.OpRemove))
	assert.Zero(t, res.Changes.Count(changes.OpSetAttribute))
	assert.Equal(t, []any{"d", "c", "b", "a"}, childIDs(t, tree, listHandle(t, tree)))
}

func TestRotateMovesOneChildWithoutRunningBodies(t *testing.T) {
	comp, tree := newComposition(t)
	compose(t, comp, keyedList("a", "b", "c"))

	res := compose(t, comp, keyedList("c", "a", "b"))
	require.Len(t, res.Changes, 1)
	assert.Equal(t, "move 1/4 2->0", res.Changes[0].String())
	assert.Equal(t, 1, res.Executed, "only the root body runs")
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, []any{"c", "a", "b"}, childIDs(t, tree, listHandle(t, tree)))
}

func TestInsertAndRemoveKeyedChildren(t *testing.T) {
	comp, tree := newComposition(t)
	compose(t, comp, keyedList("a", "c"))

	res := compose(t, comp, keyedList("a", "b", "c"))
	assert.Equal(t, []string{"insert 1/4@1 item", "set 4.id=b"}, res.Changes.Strings())
	assert.Equal(t, []any{"a", "b", "c"}, childIDs(t, tree, listHandle(t, tree)))

	res = compose(t, comp, keyedList("a", "c"))
	assert.Equal(t, 1, res.Changes.Count(changes.OpRemove))
	assert.Zero(t, res.Changes.Count(changes.OpInsert))
	assert.Equal(t, []any{"a", "c"}, childIDs(t, tree, listHandle(t, tree)))

	res = compose(t, comp, keyedList())
	assert.Equal(t, 2, res.Changes.Count(changes.OpRemove))
	assert.Equal(t, "root(list)", tree.Shape())
}

func TestLookaheadBoundTurnsFarMoveIntoReinsert(t *testing.T) {
	comp, tree := newComposition(t, WithMoveLookahead(1))
	compose(t, comp, keyedList("a", "b", "c"))

	res := compose(t, comp, keyedList("c", "a", "b"))
	assert.Zero(t, res.Changes.Count(changes.OpMove))
	assert.Equal(t, 1, res.Changes.Count(changes.OpInsert))
	assert.Equal(t, 1, res.Changes.Count(changes.OpRemove))
	assert.Equal(t, []any{"c", "a", "b"}, childIDs(t, tree, listHandle(t, tree)))
}

func TestNodeTypeChangeReplacesNode(t *testing.T) {
	comp, tree := newComposition(t)
	typ := "label"
	content := func(c *Composer) {
		c.Node(slots.K("x"), typ, nil)
	}
	compose(t, comp, content)

	typ = "button"
	res := compose(t, comp, content)
	assert.Equal(t, []string{"insert 0/2@0 button", "remove 0/1"}, res.Changes.Strings())
	assert.Equal(t, "root(button)", tree.Shape())
}

func TestDroppedAttributeIsCleared(t *testing.T) {
	comp, tree := newComposition(t)
	withB := true
	content := func(c *Composer) {
		c.Node(slots.K("x"), "box", func(c *Composer) {
			c.Attr("a", 1)
			if withB {
				c.Attr("b", 2)
			}
		})
	}
	compose(t, comp, content)

	withB = false
	res := compose(t, comp, content)
	assert.Equal(t, []string{"set 1.b=<nil>"}, res.Changes.Strings())
	n, _ := tree.Node(1)
	assert.Nil(t, n.Attrs["b"])
	assert.Equal(t, 1, n.Attrs["a"])
}

// cellList is keyedList with each item's label read from a state cell.
func cellList(cells map[string]*state.Cell[string], ids ...string) Content {
	return func(c *Composer) {
		c.Node(slots.K("list"), "list", func(c *Composer) {
			for _, id := range ids {
				c.Scope(slots.KX("item", id), func(c *Composer) {
					label := cells[id].Get(c)
					c.Node(slots.K("row"), "item", func(c *Composer) {
						c.Attr("id", id)
						c.Attr("label", label)
					})
				}, id)
			}
		})
	}
}

func TestWriteReentersOnlyTheReadingScope(t *testing.T) {
	comp, tree := newComposition(t)
	tr := comp.Tracker()
	cells := map[string]*state.Cell[string]{
		"a": state.NewCell(tr, "A"),
		"b": state.NewCell(tr, "B"),
		"c": state.NewCell(tr, "C"),
	}
	compose(t, comp, cellList(cells, "a", "b", "c"))

	cells["c"].Set("C2")
	require.True(t, comp.HasPendingWork())

	res, err := comp.Recompose(context.Background())
	require.NoError(t, err)
	require.NoError(t, comp.Table().Validate())
	assert.Equal(t, PassRecompose, res.Kind)
	assert.Equal(t, []string{"set 4.label=C2"}, res.Changes.Strings())
	assert.Equal(t, 1, res.Executed)
	assert.Equal(t, 1, res.Reentered)
	assert.False(t, res.Pending)

	n, _ := tree.Node(4)
	assert.Equal(t, "C2", n.Attrs["label"])

	// A full pass afterwards sees a consistent trace.
	res = compose(t, comp, cellList(cells, "a", "b", "c"))
	assert.Empty(t, res.Changes)
}

func TestNestedScopeInvalidationLeavesParentValid(t *testing.T) {
	comp, _ := newComposition(t)
	tr := comp.Tracker()
	x := state.NewCell(tr, 1)
	var outer, inner state.ScopeID
	outerRuns := 0

	compose(t, comp, func(c *Composer) {
		c.Scope(slots.K("s1"), func(c *Composer) {
			outer = c.CurrentScope()
			outerRuns++
			c.Node(slots.K("panel"), "panel", func(c *Composer) {
				c.Scope(slots.K("s2"), func(c *Composer) {
					inner = c.CurrentScope()
					c.Node(slots.K("text"), "text", func(c *Composer) {
						c.Attr("value", x.Get(c))
					})
				})
			})
		})
	})

	x.Set(2)
	assert.Equal(t, state.Valid, tr.Validity(outer))
	assert.Equal(t, state.Invalid, tr.Validity(inner))

	res, err := comp.Recompose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"set 2.value=2"}, res.Changes.Strings())
	assert.Equal(t, 1, outerRuns)
	assert.Equal(t, state.Valid, tr.Validity(inner))
}

func TestReentryInsertsAtTheRightIndex(t *testing.T) {
	comp, tree := newComposition(t)
	show := state.NewCell(comp.Tracker(), false)
	content := func(c *Composer) {
		c.Node(slots.K("list"), "list", func(c *Composer) {
			c.Node(slots.K("first"), "item", func(c *Composer) { c.Attr("id", "first") })
			c.Scope(slots.K("maybe"), func(c *Composer) {
				if show.Get(c) {
					c.Node(slots.K("middle"), "item", func(c *Composer) { c.Attr("id", "middle") })
				}
			})
			c.Node(slots.K("last"), "item", func(c *Composer) { c.Attr("id", "last") })
		})
	}
	compose(t, comp, content)
	list := listHandle(t, tree)

	show.Set(true)
	res, err := comp.Recompose(context.Background())
	require.NoError(t, err)
	require.NoError(t, comp.Table().Validate())
	assert.Equal(t, []string{"insert 1/4@1 item", "set 4.id=middle"}, res.Changes.Strings())
	assert.Equal(t, []any{"first", "middle", "last"}, childIDs(t, tree, list))

	show.Set(false)
	res, err = comp.Recompose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"remove 1/4"}, res.Changes.Strings())
	assert.Equal(t, []any{"first", "last"}, childIDs(t, tree, list))

	// Header node counts were patched, so a full pass is a no-op.
	res = compose(t, comp, content)
	assert.Empty(t, res.Changes)
}

func TestDuplicateKeyIsReportedAndSkipped(t *testing.T) {
	comp, tree := newComposition(t)
	res, err := comp.Compose(context.Background(), keyedList("a", "a", "b"))
	require.Error(t, err)
	assert.True(t, IsDuplicateKeyError(err))
	assert.True(t, IsDuplicateKeyError(res.Err))
	assert.NoError(t, comp.Table().Validate())
	requireNodeCounts(t, comp.Table())
	assert.Equal(t, []any{"a", "b"}, childIDs(t, tree, listHandle(t, tree)))

	// Later passes with unique keys are unaffected.
	res = compose(t, comp, keyedList("a", "b", "c"))
	assert.NoError(t, res.Err)
	assert.False(t, res.Pending)
	assert.Equal(t, []string{"insert 1/4@2 item", "set 4.id=c"}, res.Changes.Strings())
	requireNodeCounts(t, comp.Table())
	assert.Equal(t, "root(list(item,item,item))", tree.Shape())
	assert.Equal(t, []any{"a", "b", "c"}, childIDs(t, tree, listHandle(t, tree)))

	res = compose(t, comp, keyedList("a", "b", "c"))
	assert.Empty(t, res.Changes)
}

// requireNodeCounts checks every group header's node count against the
// nodes its direct children contribute.
func requireNodeCounts(t *testing.T, tbl *slots.Table) {
	t.Helper()
	for _, g := range tbl.Groups() {
		want := 0
		for _, child := range tbl.Children(g.Start) {
			if child.Kind == slots.GroupNode {
				want++
			} else {
				want += child.Nodes
			}
		}
		require.Equal(t, want, g.Nodes, "node count of group %s at %d", g.Key, g.Start)
	}
}

func TestFailedReentryRestoresTrace(t *testing.T) {
	comp, tree := newComposition(t)
	x := state.NewCell(comp.Tracker(), 0)
	withWrap := true
	var inner state.ScopeID
	content := func(c *Composer) {
		c.Node(slots.K("list"), "list", func(c *Composer) {
			if withWrap {
				c.Scope(slots.K("wrap"), func(c *Composer) {
					c.Scope(slots.K("inner"), func(c *Composer) {
						inner = c.CurrentScope()
						if x.Get(c) == 1 {
							panic(errors.New("bad row"))
						}
						c.Node(slots.K("row"), "item", nil)
					})
				})
			}
			c.Node(slots.K("tail"), "item", nil)
		})
	}
	compose(t, comp, content)
	requireNodeCounts(t, comp.Table())

	x.Set(1)
	res, err := comp.Recompose(context.Background())
	require.Error(t, err)
	assert.True(t, IsComputationError(err))
	assert.Equal(t, inner, findComputation(t, err).Scope)
	assert.Empty(t, res.Changes)
	assert.True(t, res.Pending)
	assert.Equal(t, state.Invalid, comp.Tracker().Validity(inner))
	require.NoError(t, comp.Table().Validate())
	requireNodeCounts(t, comp.Table())
	assert.Equal(t, "root(list(item,item))", tree.Shape())

	// Dropping the wrapper removes the row the failed pass left in place.
	withWrap = false
	res = compose(t, comp, content)
	assert.Equal(t, []string{"remove 1/2"}, res.Changes.Strings())
	assert.False(t, res.Pending)
	requireNodeCounts(t, comp.Table())
	assert.Equal(t, "root(list(item))", tree.Shape())
}

func TestFailedReentryIsRetried(t *testing.T) {
	comp, tree := newComposition(t)
	label := state.NewCell(comp.Tracker(), "a")
	var sc state.ScopeID
	runs := 0
	compose(t, comp, func(c *Composer) {
		c.Node(slots.K("panel"), "panel", func(c *Composer) {
			c.Scope(slots.K("s"), func(c *Composer) {
				sc = c.CurrentScope()
				runs++
				v := label.Get(c)
				c.Node(slots.K("text"), "text", func(c *Composer) {
					c.Attr("label", v)
					if v == "boom" {
						panic("bad label")
					}
				})
			})
		})
	})

	label.Set("boom")
	res, err := comp.Recompose(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, res.Reentered)
	assert.Empty(t, res.Changes)
	assert.Equal(t, state.Invalid, comp.Tracker().Validity(sc))
	assert.True(t, comp.HasPendingWork())

	// Still failing: the next pass re-enters the scope again.
	res, err = comp.Recompose(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, res.Reentered)
	assert.True(t, res.Pending)

	label.Set("b")
	res, err = comp.Recompose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"set 2.label=b"}, res.Changes.Strings())
	assert.False(t, res.Pending)
	assert.Equal(t, state.Valid, comp.Tracker().Validity(sc))
	assert.Equal(t, 4, runs)
	require.NoError(t, comp.Table().Validate())
	requireNodeCounts(t, comp.Table())

	n, _ := tree.Node(2)
	assert.Equal(t, "b", n.Attrs["label"])
}

func TestPanicRollsBackGroupAndKeepsSiblings(t *testing.T) {
	comp, tree := newComposition(t)
	boom := false
	var failing state.ScopeID
	content := func(c *Composer) {
		c.Node(slots.K("list"), "list", func(c *Composer) {
			c.Scope(slots.K("ok"), func(c *Composer) {
				c.Node(slots.K("row"), "item", func(c *Composer) { c.Attr("id", "ok") })
			})
			c.Scope(slots.K("bad"), func(c *Composer) {
				failing = c.CurrentScope()
				c.Node(slots.K("row"), "item", func(c *Composer) {
					c.Attr("id", "bad")
					if boom {
						c.Attr("extra", true)
						panic(errors.New("boom"))
					}
				})
			}, boom)
			c.Scope(slots.K("after"), func(c *Composer) {
				c.Node(slots.K("row"), "item", func(c *Composer) { c.Attr("id", "after") })
			}, boom)
		})
	}
	compose(t, comp, content)

	boom = true
	res, err := comp.Compose(context.Background(), content)
	require.Error(t, err)
	assert.True(t, IsComputationError(err))
	assert.EqualError(t, errors.Unwrap(findComputation(t, err)), "boom")
	assert.Empty(t, res.Changes, "failed region emits nothing")
	assert.True(t, res.Pending)
	assert.Equal(t, state.Invalid, comp.Tracker().Validity(failing))
	require.NoError(t, comp.Table().Validate())
	assert.Equal(t, []any{"ok", "bad", "after"}, childIDs(t, tree, listHandle(t, tree)))

	boom = false
	res = compose(t, comp, content)
	assert.NoError(t, res.Err)
	assert.False(t, res.Pending)
}

func findComputation(t *testing.T, err error) *ComputationError {
	t.Helper()
	var ce *ComputationError
	require.True(t, errors.As(err, &ce))
	return ce
}

func TestFailedFirstInsertLeavesNothing(t *testing.T) {
	comp, tree := newComposition(t)
	res, err := comp.Compose(context.Background(), func(c *Composer) {
		c.Node(slots.K("ok"), "ok", nil)
		c.Group(slots.K("g"), func(c *Composer) {
			c.Node(slots.K("half"), "half", nil)
			panic("nope")
		})
	})
	require.Error(t, err)
	assert.Equal(t, []string{"insert 0/1@0 ok"}, res.Changes.Strings())
	assert.Equal(t, "root(ok)", tree.Shape())
	require.NoError(t, comp.Table().Validate())
}

func TestReorderedAttributesEmitNothing(t *testing.T) {
	comp, tree := newComposition(t)
	swap := false
	content := func(c *Composer) {
		c.Node(slots.K("x"), "box", func(c *Composer) {
			if swap {
				c.Attr("b", 2)
				c.Attr("a", 1)
				return
			}
			c.Attr("a", 1)
			c.Attr("b", 2)
		})
	}
	compose(t, comp, content)

	swap = true
	res := compose(t, comp, content)
	assert.Empty(t, res.Changes)
	res = compose(t, comp, content)
	assert.Empty(t, res.Changes)

	n, _ := tree.Node(1)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, n.Attrs)
}

func TestValueDisplacingAttributeClearsIt(t *testing.T) {
	comp, tree := newComposition(t)
	withAttr := true
	content := func(c *Composer) {
		c.Node(slots.K("x"), "box", func(c *Composer) {
			if withAttr {
				c.Attr("a", 1)
				return
			}
			c.EmitValue("v")
		})
	}
	compose(t, comp, content)

	withAttr = false
	res := compose(t, comp, content)
	assert.Equal(t, []string{"set 1.a=<nil>"}, res.Changes.Strings())
	n, _ := tree.Node(1)
	assert.Nil(t, n.Attrs["a"])

	res = compose(t, comp, content)
	assert.Empty(t, res.Changes)
}

type explosive struct{ v int }

func (explosive) Equal(any) bool { panic("comparison failed") }

func TestPanickingEqualityCountsAsChanged(t *testing.T) {
	comp, _ := newComposition(t)
	runs := 0
	content := func(c *Composer) {
		c.Scope(slots.K("s"), func(c *Composer) { runs++ }, explosive{1})
	}
	compose(t, comp, content)
	compose(t, comp, content)
	assert.Equal(t, 2, runs)
}

func TestRememberSurvivesPasses(t *testing.T) {
	comp, _ := newComposition(t)
	calls := 0
	var cells []*state.Cell[int]
	dep := 1
	content := func(c *Composer) {
		cells = append(cells, RememberState(c, func() int { return 7 }))
		c.Remember(func() any { calls++; return dep }, dep)
	}
	compose(t, comp, content)
	compose(t, comp, content)
	require.Len(t, cells, 2)
	assert.Same(t, cells[0], cells[1])
	assert.Equal(t, 1, calls)

	dep = 2
	compose(t, comp, content)
	assert.Equal(t, 2, calls)
}

func TestSaveableRestoresAndReports(t *testing.T) {
	reg := state.NewSaveRegistry(map[string]any{"count": 5})
	comp, _ := newComposition(t, WithSaveRegistry(reg))
	var cell *state.Cell[int]
	compose(t, comp, func(c *Composer) {
		cell = Saveable(c, "count", func() int { return 0 })
	})
	assert.Equal(t, 5, cell.Peek())

	cell.Set(9)
	assert.Equal(t, map[string]any{"count": 9}, reg.Snapshot())

	_, err := comp.Dispose(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reg.Keys())
	assert.True(t, cell.Disposed())
}

func TestDisposeRemovesEverything(t *testing.T) {
	comp, tree := newComposition(t)
	compose(t, comp, keyedList("a", "b"))
	require.Positive(t, comp.Tracker().Scopes())

	res, err := comp.Dispose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"remove 0/1"}, res.Changes.Strings())
	assert.Zero(t, tree.Len())
	assert.Zero(t, comp.Table().Len())
	assert.Zero(t, comp.Tracker().Scopes())

	pe := protocolPanic(t, func() { _, _ = comp.Compose(context.Background(), keyedList()) })
	assert.Equal(t, ErrCodeClosed, pe.Code)
}

func TestRemovedPendingScopeIsCancelled(t *testing.T) {
	comp, tree := newComposition(t)
	tr := comp.Tracker()
	cells := map[string]*state.Cell[string]{"a": state.NewCell(tr, "A"), "b": state.NewCell(tr, "B")}
	compose(t, comp, cellList(cells, "a", "b"))

	cells["b"].Set("B2")
	res := compose(t, comp, cellList(cells, "a"))
	assert.False(t, res.Pending)
	assert.False(t, comp.HasPendingWork())
	assert.Equal(t, []any{"a"}, childIDs(t, tree, listHandle(t, tree)))
}

func TestCycleIsDetected(t *testing.T) {
	comp, _ := newComposition(t)
	x := state.NewCell(comp.Tracker(), 0)
	res, err := comp.Compose(context.Background(), func(c *Composer) {
		c.Scope(slots.K("loop"), func(c *Composer) {
			v := x.Get(c)
			x.Set(v + 1)
		})
	})
	require.Error(t, err)
	assert.True(t, IsCycleError(err))
	assert.Equal(t, 1, res.Reentered)
	assert.True(t, res.Pending)
	assert.Equal(t, 2, x.Peek())
}

func TestQuotaStopsDrain(t *testing.T) {
	comp, _ := newComposition(t, WithMaxReentries(1))
	tr := comp.Tracker()
	a := state.NewCell(tr, 0)
	b := state.NewCell(tr, 0)
	compose(t, comp, func(c *Composer) {
		c.Scope(slots.K("a"), func(c *Composer) { a.Get(c) })
		c.Scope(slots.K("b"), func(c *Composer) { b.Get(c) })
	})

	tr.Batch(func() {
		a.Set(1)
		b.Set(1)
	})
	res, err := comp.Recompose(context.Background())
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
	assert.Equal(t, 1, res.Reentered)
	assert.True(t, res.Pending)

	res, err = comp.Recompose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reentered)
	assert.False(t, res.Pending)
}

func TestCancelledPassCommitsNothing(t *testing.T) {
	comp, tree := newComposition(t)
	compose(t, comp, keyedList("a"))
	before := comp.Table().Len()

	ctx, cancel := context.WithCancel(context.Background())
	res, err := comp.Compose(ctx, func(c *Composer) {
		keyedList("b")(c)
		cancel()
		c.Node(slots.K("tail"), "tail", nil)
	})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, comp.Table().Len())
	assert.Equal(t, []any{"a"}, childIDs(t, tree, listHandle(t, tree)))
	require.NoError(t, comp.Table().Validate())

	compose(t, comp, keyedList("a"))
}

func protocolPanic(t *testing.T, fn func()) (pe *ProtocolError) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a protocol panic")
		var ok bool
		pe, ok = r.(*ProtocolError)
		require.True(t, ok, "panic value %v", r)
	}()
	fn()
	return nil
}

func TestProtocolViolations(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		code    ProtocolErrorCode
	}{
		{"attr outside node", func(c *Composer) { c.Attr("x", 1) }, ErrCodeMisplaced},
		{"skip in new group", func(c *Composer) {
			c.Group(slots.K("g"), func(c *Composer) { c.SkipToGroupEnd() })
		}, ErrCodeMisplaced},
		{"unclosed group", func(c *Composer) {
			c.Group(slots.K("g"), func(c *Composer) { c.StartGroup(slots.K("open")) })
		}, ErrCodeUnbalanced},
		{"extra end", func(c *Composer) {
			c.EndGroup()
			c.EndGroup()
		}, ErrCodeUnbalanced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp, tree := newComposition(t)
			pe := protocolPanic(t, func() { _, _ = comp.Compose(context.Background(), tt.content) })
			assert.Equal(t, tt.code, pe.Code)
			assert.Zero(t, comp.Table().Len(), "pass rolled back")
			assert.Zero(t, tree.Len())
		})
	}
}

func TestReentrantPassPanics(t *testing.T) {
	comp, _ := newComposition(t)
	pe := protocolPanic(t, func() {
		_, _ = comp.Compose(context.Background(), func(c *Composer) {
			_, _ = comp.Recompose(context.Background())
		})
	})
	assert.Equal(t, ErrCodeReentrant, pe.Code)

	compose(t, comp, keyedList("a"))
}

func TestComposerRejectsUseAfterPass(t *testing.T) {
	comp, _ := newComposition(t)
	var leaked *Composer
	compose(t, comp, func(c *Composer) { leaked = c })

	pe := protocolPanic(t, func() { leaked.EmitValue(1) })
	assert.Equal(t, ErrCodeClosed, pe.Code)
}

func TestChangedAndEmitValue(t *testing.T) {
	comp, _ := newComposition(t)
	v := 1
	var changed []bool
	content := func(c *Composer) {
		changed = append(changed, c.Changed(v))
		c.EmitValue("fixed")
	}
	compose(t, comp, content)
	compose(t, comp, content)
	v = 2
	compose(t, comp, content)
	assert.Equal(t, []bool{true, false, true}, changed)
}
