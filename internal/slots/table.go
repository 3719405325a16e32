package slots

const minCapacity = 16

// anchorEntry maps an anchor id to the physical index of its slot.
// A live entry with idx -1 is detached: its slot was removed inside an open
// journal and may still be restored by Rollback.
type anchorEntry struct {
	idx  int
	live bool
}

// Table is the slot buffer.
//
// Slots are stored in buf with a gap of gapLen unused cells starting at
// physical index gapStart. Logical position i maps to physical i below the
// gap and i+gapLen above it. Edits relocate the gap to the edit position so
// runs of nearby edits cost O(1) each.
type Table struct {
	buf      []Slot
	gapStart int
	gapLen   int

	anchors []anchorEntry
	free    []Anchor

	journal []op
	open    bool

	dispose func(Slot)
}

// Option configures a Table.
type Option func(*Table)

// WithDisposer registers fn to receive every slot that leaves the table for
// good: removed slots (on Commit when journaling), values replaced by Set,
// and slots of inserts undone by Rollback.
func WithDisposer(fn func(Slot)) Option {
	return func(t *Table) {
		t.dispose = fn
	}
}

// New creates an empty table.
func New(opts ...Option) *Table {
	t := &Table{anchors: make([]anchorEntry, 1)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Len returns the number of slots.
func (t *Table) Len() int {
	return len(t.buf) - t.gapLen
}

// Cap returns the physical capacity.
func (t *Table) Cap() int {
	return len(t.buf)
}

// Gap returns the logical position of the gap.
func (t *Table) Gap() int {
	return t.gapStart
}

func (t *Table) phys(i int) int {
	if i < t.gapStart {
		return i
	}
	return i + t.gapLen
}

func (t *Table) logical(p int) int {
	if p < t.gapStart {
		return p
	}
	return p - t.gapLen
}

func (t *Table) check(op string, i int) {
	if i < 0 || i >= t.Len() {
		t.fail(op, i, "")
	}
}

// Get returns the slot at position i.
func (t *Table) Get(i int) Slot {
	t.check("get", i)
	return t.buf[t.phys(i)]
}

// Set replaces the slot at position i. The slot keeps its anchor and must
// keep its kind.
func (t *Table) Set(i int, s Slot) {
	t.check("set", i)
	p := t.phys(i)
	old := t.buf[p]
	if s.Kind != old.Kind {
		t.fail("set", i, "slot kind changed from "+old.Kind.String()+" to "+s.Kind.String())
	}
	s.Anchor = old.Anchor
	t.buf[p] = s
	if t.open {
		t.journal = append(t.journal, op{kind: opSet, at: i, old: old, value: s.Value})
		return
	}
	t.disposeReplaced(old, s.Value)
}

// Insert inserts slots at position at, shifting later slots right.
// Every inserted GroupStart receives a fresh anchor.
func (t *Table) Insert(at int, slots ...Slot) {
	if at < 0 || at > t.Len() {
		t.fail("insert", at, "")
	}
	if len(slots) == 0 {
		return
	}
	t.insert(at, slots, false)
	if t.open {
		t.journal = append(t.journal, op{kind: opInsert, at: at, n: len(slots)})
	}
}

func (t *Table) insert(at int, slots []Slot, reattach bool) {
	t.moveGap(at)
	t.reserve(len(slots))
	for k, s := range slots {
		p := t.gapStart + k
		switch {
		case s.Kind != KindGroupStart:
			s.Anchor = NoAnchor
		case reattach && s.Anchor != NoAnchor:
			t.anchors[s.Anchor].idx = p
		default:
			s.Anchor = t.newAnchor(p)
		}
		t.buf[p] = s
	}
	t.gapStart += len(slots)
	t.gapLen -= len(slots)
}

// Remove removes n slots starting at position at and returns them.
// Anchors of removed groups stop resolving immediately.
func (t *Table) Remove(at, n int) []Slot {
	if n < 0 || at < 0 || at+n > t.Len() {
		t.fail("remove", at, "range exceeds table")
	}
	if n == 0 {
		return nil
	}
	removed := t.remove(at, n)
	if t.open {
		t.journal = append(t.journal, op{kind: opRemove, at: at, n: n, slots: removed})
		return removed
	}
	t.release(removed)
	return removed
}

func (t *Table) remove(at, n int) []Slot {
	t.moveGap(at)
	start := t.gapStart + t.gapLen
	removed := make([]Slot, n)
	copy(removed, t.buf[start:start+n])
	clear(t.buf[start : start+n])
	t.gapLen += n
	for _, s := range removed {
		if s.Anchor != NoAnchor {
			t.anchors[s.Anchor].idx = -1
		}
	}
	return removed
}

// MoveRange relocates the n slots starting at from so that they start at
// position to of the resulting table. Slots between the two positions shift
// to make room. Anchors inside the moved range keep their relative offsets.
func (t *Table) MoveRange(from, n, to int) {
	l := t.Len()
	if n < 0 || from < 0 || from+n > l {
		t.fail("move", from, "source range exceeds table")
	}
	if to < 0 || to+n > l {
		t.fail("move", to, "destination exceeds table")
	}
	if n == 0 || from == to {
		return
	}
	t.move(from, n, to)
	if t.open {
		t.journal = append(t.journal, op{kind: opMove, at: from, n: n, to: to})
	}
}

func (t *Table) move(from, n, to int) {
	lo := min(from, to)
	t.moveGap(lo)

	// Everything from lo onward is now physically contiguous.
	base := t.gapStart + t.gapLen
	pf := base + from - lo
	pt := base + to - lo

	tmp := make([]Slot, n)
	copy(tmp, t.buf[pf:pf+n])
	if from > to {
		copy(t.buf[pt+n:pf+n], t.buf[pt:pf])
	} else {
		copy(t.buf[pf:pt], t.buf[pf+n:pt+n])
	}
	copy(t.buf[pt:pt+n], tmp)

	span := n + from - to
	if to > from {
		span = n + to - from
	}
	t.reanchor(base, span)
}

// moveGap relocates the gap to logical position to.
func (t *Table) moveGap(to int) {
	switch {
	case to < t.gapStart:
		n := t.gapStart - to
		copy(t.buf[to+t.gapLen:t.gapStart+t.gapLen], t.buf[to:t.gapStart])
		t.reanchor(to+t.gapLen, n)
		clear(t.buf[to : to+min(n, t.gapLen)])
	case to > t.gapStart:
		n := to - t.gapStart
		src := t.gapStart + t.gapLen
		copy(t.buf[t.gapStart:to], t.buf[src:src+n])
		t.reanchor(t.gapStart, n)
		clear(t.buf[max(src, to) : src+n])
	}
	t.gapStart = to
}

// reserve grows the buffer, doubling, until the gap holds at least n slots.
func (t *Table) reserve(n int) {
	if t.gapLen >= n {
		return
	}
	l := t.Len()
	capacity := max(minCapacity, 2*len(t.buf))
	for capacity-l < n {
		capacity *= 2
	}

	nb := make([]Slot, capacity)
	copy(nb, t.buf[:t.gapStart])
	suffix := t.buf[t.gapStart+t.gapLen:]
	suffixStart := capacity - len(suffix)
	copy(nb[suffixStart:], suffix)

	t.buf = nb
	t.gapLen = capacity - l
	t.reanchor(suffixStart, len(suffix))
}

// reanchor points the anchors of the n physical slots at p back at them.
func (t *Table) reanchor(p, n int) {
	for q := p; q < p+n; q++ {
		if a := t.buf[q].Anchor; a != NoAnchor {
			t.anchors[a].idx = q
		}
	}
}

func (t *Table) newAnchor(p int) Anchor {
	if n := len(t.free); n > 0 {
		a := t.free[n-1]
		t.free = t.free[:n-1]
		t.anchors[a] = anchorEntry{idx: p, live: true}
		return a
	}
	t.anchors = append(t.anchors, anchorEntry{idx: p, live: true})
	return Anchor(len(t.anchors) - 1)
}

// release frees the anchors of slots that left the table and disposes them.
func (t *Table) release(slots []Slot) {
	for _, s := range slots {
		if s.Anchor != NoAnchor && t.anchors[s.Anchor].live {
			t.anchors[s.Anchor] = anchorEntry{idx: -1}
			t.free = append(t.free, s.Anchor)
		}
		if t.dispose != nil {
			t.dispose(s)
		}
	}
}

func (t *Table) disposeReplaced(old Slot, current any) {
	if old.Kind != KindValue || t.dispose == nil || explicitEqual(old.Value, current) {
		return
	}
	t.dispose(old)
}

// Location resolves an anchor to its current position, or -1 when the
// anchor's group is no longer in the table.
func (t *Table) Location(a Anchor) int {
	if a <= NoAnchor || int(a) >= len(t.anchors) {
		return -1
	}
	e := t.anchors[a]
	if !e.live || e.idx < 0 {
		return -1
	}
	return t.logical(e.idx)
}

// Valid reports whether the anchor resolves.
func (t *Table) Valid(a Anchor) bool {
	return t.Location(a) >= 0
}

// Anchors returns the number of live anchors.
func (t *Table) Anchors() int {
	return len(t.anchors) - 1 - len(t.free)
}
