package treespec

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/recompose/internal/compose"
	"github.com/roach88/recompose/internal/ir"
	"github.com/roach88/recompose/internal/slots"
	"github.com/roach88/recompose/internal/state"
)

// Model is a Program bound to live state.
type Model struct {
	prog    *Program
	tracker *state.Tracker
	cells   map[string]*state.Cell[ir.Value]
}

// Bind creates one state cell per state entry of prog.
func Bind(prog *Program, tracker *state.Tracker) *Model {
	m := &Model{
		prog:    prog,
		tracker: tracker,
		cells:   make(map[string]*state.Cell[ir.Value], len(prog.StateNames)),
	}
	for _, name := range prog.StateNames {
		m.cells[name] = state.NewCell(tracker, prog.State[name], state.WithEqual[ir.Value](ir.Equal))
	}
	return m
}

// Program returns the bound program.
func (m *Model) Program() *Program { return m.prog }

// Names returns the state names in declaration order.
func (m *Model) Names() []string { return slices.Clone(m.prog.StateNames) }

// Get returns the current value of a state entry without recording a read.
func (m *Model) Get(name string) (ir.Value, bool) {
	cell, ok := m.cells[name]
	if !ok {
		return nil, false
	}
	return cell.Peek(), true
}

// Set writes a state entry. It reports whether the value changed.
func (m *Model) Set(name string, v ir.Value) (bool, error) {
	cell, ok := m.cells[name]
	if !ok {
		return false, fmt.Errorf("unknown state %q", name)
	}
	if v == nil {
		return false, fmt.Errorf("state %q: nil value", name)
	}
	return cell.Set(v), nil
}

// SetJSON writes a state entry from its JSON encoding.
func (m *Model) SetJSON(name string, data []byte) (bool, error) {
	v, err := ir.Unmarshal(data)
	if err != nil {
		return false, fmt.Errorf("state %q: %w", name, err)
	}
	return m.Set(name, v)
}

// SetAll writes several entries as one batch, so readers of more than one
// of them are invalidated once.
func (m *Model) SetAll(values map[string]ir.Value) error {
	for name := range values {
		if _, ok := m.cells[name]; !ok {
			return fmt.Errorf("unknown state %q", name)
		}
	}
	m.tracker.Batch(func() {
		for _, name := range slices.Sorted(maps.Keys(values)) {
			m.cells[name].Set(values[name])
		}
	})
	return nil
}

// Snapshot returns the current state as plain Go values.
func (m *Model) Snapshot() map[string]any {
	out := make(map[string]any, len(m.cells))
	for name, cell := range m.cells {
		out[name] = ir.ToGo(cell.Peek())
	}
	return out
}

// Restore writes values saved by Snapshot. Names the program no longer
// declares are ignored.
func (m *Model) Restore(values map[string]any) error {
	converted := make(map[string]ir.Value, len(values))
	for name, raw := range values {
		if _, ok := m.cells[name]; !ok {
			continue
		}
		v, err := ir.FromGo(raw)
		if err != nil {
			return fmt.Errorf("restore %q: %w", name, err)
		}
		converted[name] = v
	}
	return m.SetAll(converted)
}

// Dispose disposes every state cell.
func (m *Model) Dispose() {
	for _, cell := range m.cells {
		cell.Dispose()
	}
}

type env struct {
	item    ir.Value
	index   int
	hasItem bool
}

// Content returns the content that composes the tree. Every declared node
// is a restartable scope around its node group.
func (m *Model) Content() compose.Content {
	return func(c *compose.Composer) {
		m.node(c, m.prog.Root, env{}, slots.K(m.prog.Root.Path))
	}
}

func (m *Model) node(c *compose.Composer, spec *NodeSpec, e env, key slots.Key) {
	var deps []any
	if spec.usesItem {
		deps = append(deps, e.item)
	}
	if spec.usesIndex {
		deps = append(deps, e.index)
	}
	c.Scope(key, func(c *compose.Composer) {
		c.Node(slots.K(spec.Path+"#node"), spec.Type, func(c *compose.Composer) {
			for _, a := range spec.Attrs {
				c.Attr(a.Name, ir.ToGo(m.eval(c, a.Value, e)))
			}
			m.children(c, spec.Children, e)
		})
	}, deps...)
}

func (m *Model) children(c *compose.Composer, specs []*NodeSpec, e env) {
	for _, ch := range specs {
		if !ch.When.IsZero() && !Truthy(m.eval(c, ch.When, e)) {
			continue
		}
		if ch.Each.IsZero() {
			m.node(c, ch, e, slots.K(ch.Path))
			continue
		}

		items, ok := m.eval(c, ch.Each, e).(ir.List)
		if !ok {
			panic(fmt.Errorf("%s.each: %s is not a list", ch.Path, ch.Each))
		}
		c.Group(slots.K(ch.Path+"#each"), func(c *compose.Composer) {
			for i, item := range items {
				ie := env{item: item, index: i, hasItem: true}
				k := ir.Render(m.eval(c, ch.Key, ie))
				m.node(c, ch, ie, slots.KX(ch.Path, k))
			}
		})
	}
}

// eval evaluates e, recording state reads in the current scope. Failures
// panic so the enclosing scope records them as computation errors.
func (m *Model) eval(c *compose.Composer, expr Expr, e env) ir.Value {
	v, err := expr.Eval(func(ref Ref) (ir.Value, error) {
		switch ref.Root {
		case RootState:
			cell, ok := m.cells[ref.Path[0]]
			if !ok {
				return nil, fmt.Errorf("${%s}: unknown state", ref)
			}
			return walk(cell.Get(c), ref, ref.Path[1:])
		case RootItem:
			if !e.hasItem {
				return nil, fmt.Errorf("${%s} outside each", ref)
			}
			return walk(e.item, ref, ref.Path)
		case RootIndex:
			if !e.hasItem {
				return nil, fmt.Errorf("${index} outside each")
			}
			return ir.Int(e.index), nil
		}
		return nil, fmt.Errorf("${%s}: unknown reference", ref)
	})
	if err != nil {
		panic(err)
	}
	return v
}
