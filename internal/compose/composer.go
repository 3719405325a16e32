package compose

import (
	"context"
	"reflect"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/slots"
	"github.com/roach88/recompose/internal/state"
)

// frame is an open group on the cursor stack.
//
// Frame 0 is the root level: it has no GroupStart, ends at the table's
// length and stands for the changes.Root container.
type frame struct {
	start  int
	end    int
	key    slots.Key
	kind   slots.GroupKind
	anchor slots.Anchor

	// container is set for node frames and the root level: nodes emitted
	// inside are children of handle.
	container bool
	handle    changes.Handle

	// inserting is set when the group is new in this pass and so has no
	// previous content to read.
	inserting bool

	// nodes counts the top-level nodes completed inside the frame so far.
	nodes int

	scope *Scope
	keys  map[slots.Key]struct{}
	attrs map[string]struct{}
}

// Composer is the handle content uses to record a pass. It is only valid
// for the duration of the pass that created it.
//
// The slot table is traversed in place by one cursor: slots behind pos hold
// the trace written by this pass, slots from pos to the enclosing frame's
// end hold the previous trace not yet read.
type Composer struct {
	ctx     context.Context
	comp    *Composition
	table   *slots.Table
	tracker *state.Tracker
	passID  string

	frames []frame
	pos    int
	scopes []*Scope

	changes   changes.List
	executed  []state.ScopeID
	failed    map[state.ScopeID]struct{}
	errs      *multierror.Error
	guard     *passGuard
	skipped   int
	reentered int
	closed    bool
}

func newComposer(ctx context.Context, comp *Composition, passID string) *Composer {
	return &Composer{
		ctx:     ctx,
		comp:    comp,
		table:   comp.table,
		tracker: comp.tracker,
		passID:  passID,
		frames:  []frame{{start: -1, end: comp.table.Len(), container: true, handle: changes.Root}},
		failed:  make(map[state.ScopeID]struct{}),
		guard:   newPassGuard(passID, comp.maxReentries),
	}
}

// Context returns the pass context.
func (c *Composer) Context() context.Context { return c.ctx }

// Tracker returns the tracker for creating state cells.
func (c *Composer) Tracker() *state.Tracker { return c.tracker }

// PassID returns the id of the running pass.
func (c *Composer) PassID() string { return c.passID }

// CurrentScope returns the innermost executing scope, or state.NoScope.
func (c *Composer) CurrentScope() state.ScopeID {
	if sc := c.currentScope(); sc != nil {
		return sc.id
	}
	return state.NoScope
}

func (c *Composer) currentScope() *Scope {
	if n := len(c.scopes); n > 0 {
		return c.scopes[n-1]
	}
	return nil
}

// RecordRead attributes a state read to the executing scope.
// Composer implements state.Observer.
func (c *Composer) RecordRead(id state.StateID) {
	c.live()
	if sc := c.currentScope(); sc != nil {
		c.tracker.RecordRead(id, sc.id)
	}
}

func (c *Composer) top() *frame { return &c.frames[len(c.frames)-1] }

func (c *Composer) live() {
	if c.closed {
		panic(protocolf(ErrCodeClosed, "composer used after pass %s finished", c.passID))
	}
}

func (c *Composer) checkCtx() {
	if err := c.ctx.Err(); err != nil {
		panic(abort{err: err})
	}
}

func (c *Composer) emit(ch changes.Change) {
	c.changes = append(c.changes, ch)
}

func (c *Composer) fail(err error) {
	c.errs = multierror.Append(c.errs, err)
}

// grow shifts the end of every open frame after n slots were inserted (or
// removed, for negative n) at the cursor.
func (c *Composer) grow(n int) {
	for i := range c.frames {
		c.frames[i].end += n
	}
}

// containerOf returns the index of the nearest container frame at or below top.
func (c *Composer) containerOf(top int) int {
	for i := top; i > 0; i-- {
		if c.frames[i].container {
			return i
		}
	}
	return 0
}

// nodeIndex returns the index the next node emitted in frame top takes
// among its container's children.
func (c *Composer) nodeIndex(top int) int {
	n := 0
	for i := c.containerOf(top); i <= top; i++ {
		n += c.frames[i].nodes
	}
	return n
}

func (c *Composer) parentHandle(top int) changes.Handle {
	return c.frames[c.containerOf(top)].handle
}

// contribution is the number of nodes a group adds to its container.
func contribution(s slots.Slot) int {
	if s.Group == slots.GroupNode {
		return 1
	}
	return s.Nodes
}

func matches(s slots.Slot, key slots.Key, kind slots.GroupKind, aux any) bool {
	if s.Kind != slots.KindGroupStart || s.Group != kind || !s.Key.Equal(key) {
		return false
	}
	return kind != slots.GroupNode || s.Aux == aux
}

// topNodes returns the handles of the outermost nodes in [from, to).
func (c *Composer) topNodes(from, to int) []changes.Handle {
	var out []changes.Handle
	for i := from; i < to; {
		s := c.table.Get(i)
		if s.Kind != slots.KindGroupStart {
			i++
			continue
		}
		if s.Group == slots.GroupNode {
			out = append(out, changes.Handle(s.Node))
		} else if s.Nodes > 0 {
			out = append(out, c.topNodes(i+1, i+s.Size)...)
		}
		i += s.Size + 1
	}
	return out
}

// locate positions the old group matching key at the cursor. A keyed group
// found further ahead is moved back; a positional one is reached by
// removing the stale groups in between. Reports whether a group was found.
func (c *Composer) locate(key slots.Key, kind slots.GroupKind, aux any) bool {
	f := c.top()
	if f.inserting {
		return false
	}
	scanned := 0
	between := 0
	for i := c.pos; i < f.end; {
		s := c.table.Get(i)
		if s.Kind != slots.KindGroupStart {
			i++
			continue
		}
		if matches(s, key, kind, aux) {
			switch {
			case i == c.pos:
			case key.HasExplicit():
				c.moveHere(i, between)
			default:
				c.removeRange(c.pos, i-c.pos)
			}
			return true
		}
		scanned++
		if la := c.comp.lookahead; la >= 0 && scanned > la {
			return false
		}
		between += contribution(s)
		i += s.Size + 1
	}
	return false
}

// moveHere relocates the group at q to the cursor and emits a move for each
// of its outermost nodes. between is the number of nodes the move jumps.
func (c *Composer) moveHere(q, between int) {
	s := c.table.Get(q)
	n := s.Size + 1
	handles := c.topNodes(q, q+n)
	c.table.MoveRange(q, n, c.pos)

	top := len(c.frames) - 1
	base := c.nodeIndex(top)
	parent := c.parentHandle(top)
	for j, h := range handles {
		c.emit(changes.Move(parent, h, base+between+j, base+j))
	}
}

// removeRange deletes n slots at the cursor's frame and emits removals for
// the outermost nodes among them. Attributes of the enclosing node that
// were not set again in this pass are cleared.
func (c *Composer) removeRange(at, n int) {
	if n <= 0 {
		return
	}
	top := len(c.frames) - 1
	parent := c.parentHandle(top)
	for _, h := range c.topNodes(at, at+n) {
		c.emit(changes.Remove(parent, h))
	}
	if f := c.top(); top > 0 && f.kind == slots.GroupNode {
		for i := at; i < at+n; {
			s := c.table.Get(i)
			if s.Kind == slots.KindGroupStart {
				i += s.Size + 1
				continue
			}
			if a, ok := s.Value.(attr); ok {
				if _, kept := f.attrs[a.name]; !kept {
					c.emit(changes.SetAttribute(f.handle, a.name, nil))
				}
			}
			i++
		}
	}
	c.table.Remove(at, n)
	c.grow(-n)
}

// start enters a group at the cursor, reusing the matching old group or
// inserting a new one. New scope groups get a registered Scope, new node
// groups a fresh handle. Reports whether an old group was reused.
func (c *Composer) start(key slots.Key, kind slots.GroupKind, aux any) bool {
	c.live()
	c.checkCtx()

	if c.locate(key, kind, aux) {
		s := c.table.Get(c.pos)
		fr := frame{
			start:     c.pos,
			end:       c.pos + s.Size,
			key:       key,
			kind:      kind,
			anchor:    s.Anchor,
			container: kind == slots.GroupNode,
			handle:    changes.Handle(s.Node),
		}
		if sc, ok := s.Aux.(*Scope); ok {
			fr.scope = sc
		}
		c.frames = append(c.frames, fr)
		c.pos++
		return true
	}

	pair := slots.GroupSlots(key, kind, c.top().anchor)
	var sc *Scope
	switch kind {
	case slots.GroupScope:
		sc = &Scope{id: c.tracker.RegisterScope(c.comp.owner, c.CurrentScope())}
		pair[0].Aux = sc
	case slots.GroupNode:
		pair[0].Aux = aux
		pair[0].Node = int64(c.comp.newHandle())
	default:
		pair[0].Aux = aux
	}
	c.table.Insert(c.pos, pair[:]...)
	c.grow(2)

	s := c.table.Get(c.pos)
	if sc != nil {
		sc.anchor = s.Anchor
		c.comp.scopes[sc.id] = sc
	}
	c.frames = append(c.frames, frame{
		start:     c.pos,
		end:       c.pos + 1,
		key:       key,
		kind:      kind,
		anchor:    s.Anchor,
		container: kind == slots.GroupNode,
		handle:    changes.Handle(s.Node),
		inserting: true,
		scope:     sc,
	})
	c.pos++
	return false
}

// end closes the innermost group: unread old content is removed and the
// header's size and node count are patched.
func (c *Composer) end() {
	c.live()
	if len(c.frames) <= 1 {
		panic(protocolf(ErrCodeUnbalanced, "EndGroup without matching StartGroup"))
	}
	if f := c.top(); c.pos < f.end {
		c.removeRange(c.pos, f.end-c.pos)
	}
	f := c.top()
	if c.pos != f.end || c.table.Get(c.pos).Kind != slots.KindGroupEnd {
		panic(protocolf(ErrCodeCorrupt, "group %s at %d does not end at %d", f.key, f.start, c.pos))
	}

	s := c.table.Get(f.start)
	if size := f.end - f.start; s.Size != size || s.Nodes != f.nodes {
		s.Size = size
		s.Nodes = f.nodes
		c.table.Set(f.start, s)
	}
	c.pos++

	contrib := f.nodes
	if f.kind == slots.GroupNode {
		contrib = 1
	}
	c.frames = c.frames[:len(c.frames)-1]
	c.top().nodes += contrib
}

// claim records an explicit key in the current frame. Reports false when
// the key was already used by a sibling in this pass.
func (c *Composer) claim(key slots.Key) bool {
	if !key.HasExplicit() || !hashable(key.Explicit) {
		return true
	}
	f := c.top()
	if f.keys == nil {
		f.keys = make(map[slots.Key]struct{})
	}
	if _, dup := f.keys[key]; dup {
		return false
	}
	f.keys[key] = struct{}{}
	return true
}

// hashable reports whether v can be used as a map key. Comparable types
// holding uncomparable dynamic values still panic, hence the trial insert.
func hashable(v any) (ok bool) {
	if !reflect.TypeOf(v).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = map[any]struct{}{v: {}}
	return true
}

// StartGroup begins a plain group. Prefer Group, which also acts as a
// failure boundary.
func (c *Composer) StartGroup(key slots.Key) {
	c.live()
	if !c.claim(key) {
		panic(&DuplicateKeyError{Key: key, Parent: c.top().key})
	}
	c.start(key, slots.GroupPlain, nil)
}

// EndGroup closes the group opened by the matching StartGroup.
func (c *Composer) EndGroup() {
	c.end()
}

// SkipToGroupEnd reuses the rest of the current group unchanged. It must
// be called before any content of the group was recorded and only on a
// group that existed in the previous pass.
func (c *Composer) SkipToGroupEnd() {
	c.live()
	f := c.top()
	switch {
	case len(c.frames) <= 1:
		panic(protocolf(ErrCodeMisplaced, "SkipToGroupEnd outside a group"))
	case f.inserting:
		panic(protocolf(ErrCodeMisplaced, "SkipToGroupEnd in new group %s", f.key))
	case c.pos != f.start+1:
		panic(protocolf(ErrCodeMisplaced, "SkipToGroupEnd after content of %s was recorded", f.key))
	}
	f.nodes = c.table.Get(f.start).Nodes
	c.pos = f.end
}

// valueAt returns the old value slot at the cursor, if there is one.
// Attribute slots are left for Attr to find or for end to clear.
func (c *Composer) valueAt() (slots.Slot, bool) {
	f := c.top()
	if f.inserting || c.pos >= f.end {
		return slots.Slot{}, false
	}
	s := c.table.Get(c.pos)
	if _, isAttr := s.Value.(attr); isAttr {
		return slots.Slot{}, false
	}
	return s, s.Kind == slots.KindValue
}

// attrAt moves the node's old slot for attribute name to the cursor.
// Only slots directly inside the node are searched.
func (c *Composer) attrAt(name string) (attr, bool) {
	f := c.top()
	if f.inserting {
		return attr{}, false
	}
	for i := c.pos; i < f.end; {
		s := c.table.Get(i)
		if s.Kind == slots.KindGroupStart {
			i += s.Size + 1
			continue
		}
		if a, ok := s.Value.(attr); ok && a.name == name {
			c.table.MoveRange(i, 1, c.pos)
			return a, true
		}
		i++
	}
	return attr{}, false
}

func (c *Composer) insertValue(v any) {
	c.table.Insert(c.pos, slots.ValueSlot(v))
	c.grow(1)
	c.pos++
}

// EmitValue records v in the next value slot. When the slot already holds
// an equal value it is kept and returned instead.
func (c *Composer) EmitValue(v any) any {
	c.live()
	if s, ok := c.valueAt(); ok {
		if state.Equal(s.Value, v) {
			c.pos++
			return s.Value
		}
		c.table.Set(c.pos, slots.ValueSlot(v))
		c.pos++
		return v
	}
	c.insertValue(v)
	return v
}

// Changed records v like EmitValue and reports whether it differs from the
// value recorded at this position in the previous pass.
func (c *Composer) Changed(v any) bool {
	c.live()
	if s, ok := c.valueAt(); ok {
		c.pos++
		if state.Equal(s.Value, v) {
			return false
		}
		c.table.Set(c.pos-1, slots.ValueSlot(v))
		return true
	}
	c.insertValue(v)
	return true
}

// Remember returns the value calc produced the last time this position ran
// with equal deps, calling calc only when there is none.
func (c *Composer) Remember(calc func() any, deps ...any) any {
	c.live()
	if s, ok := c.valueAt(); ok {
		if r, ok := s.Value.(*remembered); ok && depsEqual(r.deps, deps) {
			c.pos++
			return r.value
		}
		r := &remembered{value: calc(), deps: slices.Clone(deps)}
		c.table.Set(c.pos, slots.ValueSlot(r))
		c.pos++
		return r.value
	}
	r := &remembered{value: calc(), deps: slices.Clone(deps)}
	c.insertValue(r)
	return r.value
}

// Group runs content inside a plain group that acts as a failure boundary.
func (c *Composer) Group(key slots.Key, content Content) {
	c.boundary(key, slots.GroupPlain, nil, func(bool) {
		content(c)
	})
}

// Scope runs content as a restartable scope. When the scope existed in the
// previous pass, is still Valid and deps equal the previous deps, content
// is skipped and the old trace reused.
func (c *Composer) Scope(key slots.Key, content Content, deps ...any) {
	c.scope(key, content, deps, false)
}

func (c *Composer) scope(key slots.Key, content Content, deps []any, force bool) {
	c.boundary(key, slots.GroupScope, nil, func(matched bool) {
		sc := c.top().scope
		sc.block = content
		if matched && !force && c.tracker.Validity(sc.id) == state.Valid && depsEqual(sc.deps, deps) {
			c.skipped++
			c.SkipToGroupEnd()
			return
		}
		sc.deps = slices.Clone(deps)
		c.execute(sc)
	})
}

func (c *Composer) execute(sc *Scope) {
	c.tracker.BeginPass(sc.id)
	c.executed = append(c.executed, sc.id)
	c.scopes = append(c.scopes, sc)
	sc.block(c)
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// Node emits a node of type typ. A new node is inserted into its container
// before any of its content runs, so subtrees are inserted parent first.
// Node type is part of the match: a different type at the same key
// replaces the node.
func (c *Composer) Node(key slots.Key, typ string, content Content) {
	c.boundary(key, slots.GroupNode, typ, func(matched bool) {
		if !matched {
			top := len(c.frames) - 1
			c.emit(changes.Insert(c.parentHandle(top-1), c.top().handle, c.nodeIndex(top-1), typ))
		}
		if content != nil {
			content(c)
		}
	})
}

// Attr sets an attribute of the innermost node. Unchanged values emit nothing.
func (c *Composer) Attr(name string, value any) {
	c.live()
	f := c.top()
	if len(c.frames) <= 1 || f.kind != slots.GroupNode {
		panic(protocolf(ErrCodeMisplaced, "Attr(%q) outside a node", name))
	}
	if f.attrs == nil {
		f.attrs = make(map[string]struct{})
	}
	f.attrs[name] = struct{}{}

	if a, ok := c.attrAt(name); ok {
		c.pos++
		if state.Equal(a.value, value) {
			return
		}
		c.table.Set(c.pos-1, slots.ValueSlot(attr{name: name, value: value}))
		c.emit(changes.SetAttribute(f.handle, name, value))
		return
	}
	c.insertValue(attr{name: name, value: value})
	c.emit(changes.SetAttribute(f.handle, name, value))
}

// mark captures everything a failed region must restore.
type mark struct {
	journal  slots.Mark
	length   int
	pos      int
	depth    int
	nodes    int
	changes  int
	scopes   int
	executed int
}

func (c *Composer) mark() mark {
	return mark{
		journal:  c.table.Begin(),
		length:   c.table.Len(),
		pos:      c.pos,
		depth:    len(c.frames),
		nodes:    c.top().nodes,
		changes:  len(c.changes),
		scopes:   len(c.scopes),
		executed: len(c.executed),
	}
}

// boundary runs a group as a failure boundary.
func (c *Composer) boundary(key slots.Key, kind slots.GroupKind, aux any, body func(matched bool)) {
	c.live()
	if !c.claim(key) {
		c.fail(&DuplicateKeyError{Key: key, Parent: c.top().key})
		return
	}
	m := c.mark()
	var own *Scope
	done := false
	defer func() {
		if done {
			return
		}
		r := recover()
		if r == nil {
			return
		}
		if fatal(r) {
			panic(r)
		}
		c.recoverAt(m, key, kind, aux, own, r)
	}()

	matched := c.start(key, kind, aux)
	if matched {
		own = c.top().scope
	}
	body(matched)
	if len(c.frames) != m.depth+1 {
		panic(protocolf(ErrCodeUnbalanced, "group %s returned with %d groups open", key, len(c.frames)-m.depth-1))
	}
	c.end()
	done = true
}

// recoverAt restores the state captured by m after content panicked with r,
// records the failure and reuses the group's old trace, if any.
//
// The failed scope (own, when the group was an existing scope) or else the
// enclosing scope is left Invalid, as is every scope executed inside the
// region, and none of them is retried within this pass.
func (c *Composer) recoverAt(m mark, key slots.Key, kind slots.GroupKind, aux any, own *Scope, r any) {
	delta := c.table.Len() - m.length
	c.table.Rollback(m.journal)
	c.frames = c.frames[:m.depth]
	c.grow(-delta)
	c.top().nodes = m.nodes
	c.pos = m.pos
	c.changes = c.changes[:m.changes]
	c.scopes = c.scopes[:m.scopes]

	if dup, ok := r.(*DuplicateKeyError); ok {
		c.fail(dup)
	} else {
		for _, id := range c.executed[m.executed:] {
			c.retry(id)
		}
		failing := own
		if failing == nil {
			failing = c.currentScope()
		}
		var id state.ScopeID
		if failing != nil {
			id = failing.id
			c.retry(id)
		}
		c.comp.logger.Debug("group failed", "composition", c.comp.name, "pass", c.passID, "group", key.String(), "panic", r)
		c.fail(&ComputationError{Key: key, Scope: id, Value: r})
	}

	if c.locate(key, kind, aux) {
		s := c.table.Get(c.pos)
		c.top().nodes += contribution(s)
		c.pos += s.Size + 1
	}
}

func (c *Composer) retry(id state.ScopeID) {
	c.tracker.Retry(id)
	c.failed[id] = struct{}{}
}

// finishRoot removes root-level content left behind the root group.
func (c *Composer) finishRoot() {
	if f := c.top(); len(c.frames) == 1 && c.pos < f.end {
		c.removeRange(c.pos, f.end-c.pos)
	}
}

// drain re-enters pending scopes one at a time in document order until none
// is eligible.
func (c *Composer) drain() {
	for {
		sc, loc := c.nextPending()
		if sc == nil {
			return
		}
		if err := c.guard.check(sc.id); err != nil {
			c.fail(err)
			if IsQuotaError(err) {
				return
			}
			continue
		}
		c.guard.record(sc.id)
		c.reentered++
		c.recomposeScope(sc, loc)
	}
}

// nextPending returns the first eligible top-level pending scope in
// document order. Pending scopes whose group is gone are cancelled.
func (c *Composer) nextPending() (*Scope, int) {
	var best *Scope
	bestLoc := -1
	for _, id := range c.tracker.TopLevelDirty(c.comp.owner) {
		if _, bad := c.failed[id]; bad || !c.guard.allowed(id) {
			continue
		}
		sc, ok := c.comp.scopes[id]
		loc := -1
		if ok {
			loc = c.table.Location(sc.anchor)
		}
		if loc < 0 {
			c.tracker.Cancel(id)
			continue
		}
		if best == nil || loc < bestLoc {
			best, bestLoc = sc, loc
		}
	}
	return best, bestLoc
}

// recomposeScope re-enters the scope group at loc without re-running its
// ancestors. The ancestor frames are rebuilt from the table so node
// indexes resolve, and their headers are patched afterwards.
func (c *Composer) recomposeScope(sc *Scope, loc int) {
	c.checkCtx()
	c.frames = c.frames[:1]
	c.frames[0].nodes = 0
	c.frames[0].end = c.table.Len()
	c.scopes = c.scopes[:0]
	c.descendTo(loc)

	depth := len(c.frames)
	before := c.top().nodes
	s := c.table.Get(loc)
	old := contribution(s)
	// A failed re-entry resumes at loc, where recoverAt finds the restored group.
	c.pos = loc
	m := c.mark()

	func() {
		done := false
		defer func() {
			if done {
				return
			}
			r := recover()
			if r == nil {
				return
			}
			if fatal(r) {
				panic(r)
			}
			c.recoverAt(m, s.Key, slots.GroupScope, nil, sc, r)
		}()

		c.frames = append(c.frames, frame{
			start:  loc,
			end:    loc + s.Size,
			key:    s.Key,
			kind:   slots.GroupScope,
			anchor: s.Anchor,
			scope:  sc,
		})
		c.pos++
		c.execute(sc)
		if len(c.frames) != depth+1 {
			panic(protocolf(ErrCodeUnbalanced, "scope %s returned with %d groups open", s.Key, len(c.frames)-depth-1))
		}
		c.end()
		done = true
	}()

	c.unwind(c.top().nodes - before - old)
}

// descendTo pushes a frame for every group enclosing target, counting the
// nodes that precede the path at each level.
func (c *Composer) descendTo(target int) {
	i := 0
outer:
	for {
		f := c.top()
		for i < f.end {
			s := c.table.Get(i)
			if s.Kind != slots.KindGroupStart {
				i++
				continue
			}
			if i == target {
				return
			}
			end := i + s.Size
			if target > i && target < end {
				fr := frame{
					start:     i,
					end:       end,
					key:       s.Key,
					kind:      s.Group,
					anchor:    s.Anchor,
					container: s.Group == slots.GroupNode,
					handle:    changes.Handle(s.Node),
				}
				if sc, ok := s.Aux.(*Scope); ok {
					fr.scope = sc
					c.scopes = append(c.scopes, sc)
				}
				c.frames = append(c.frames, fr)
				i++
				continue outer
			}
			f.nodes += contribution(s)
			i = end + 1
		}
		panic(protocolf(ErrCodeCorrupt, "scope group at %d is not reachable from the root", target))
	}
}

// unwind patches the headers of the frames rebuilt by descendTo: sizes
// always, node counts by delta up to and including the nearest node.
func (c *Composer) unwind(delta int) {
	propagate := delta != 0
	for i := len(c.frames) - 1; i >= 1; i-- {
		f := &c.frames[i]
		s := c.table.Get(f.start)
		changed := false
		if size := f.end - f.start; s.Size != size {
			s.Size = size
			changed = true
		}
		if propagate {
			s.Nodes += delta
			changed = true
		}
		if f.kind == slots.GroupNode {
			propagate = false
		}
		if changed {
			c.table.Set(f.start, s)
		}
	}
	c.frames = c.frames[:1]
	c.scopes = c.scopes[:0]
	c.pos = c.table.Len()
	c.frames[0].end = c.table.Len()
}
