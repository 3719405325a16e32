package slots

type opKind uint8

const (
	opInsert opKind = iota
	opRemove
	opMove
	opSet
)

type op struct {
	kind  opKind
	at    int
	n     int
	to    int
	slots []Slot
	old   Slot
	value any
}

// Mark is a position in the edit journal.
type Mark int

// Begin opens the journal if needed and returns the current mark.
// Marks nest: rolling back to an earlier mark undoes every later edit.
func (t *Table) Begin() Mark {
	t.open = true
	return Mark(len(t.journal))
}

// Journaling reports whether edits are being recorded.
func (t *Table) Journaling() bool {
	return t.open
}

// Rollback undoes every edit recorded after m, newest first.
// Slots created by undone inserts are disposed; slots restored by undone
// removes get their anchors back.
func (t *Table) Rollback(m Mark) {
	if int(m) < 0 || int(m) > len(t.journal) {
		t.fail("rollback", int(m), "mark outside journal")
	}
	for len(t.journal) > int(m) {
		o := t.journal[len(t.journal)-1]
		t.journal = t.journal[:len(t.journal)-1]

		switch o.kind {
		case opInsert:
			t.release(t.remove(o.at, o.n))
		case opRemove:
			t.insert(o.at, o.slots, true)
		case opMove:
			t.move(o.to, o.n, o.at)
		case opSet:
			p := t.phys(o.at)
			cur := t.buf[p]
			t.buf[p] = o.old
			t.disposeReplaced(cur, o.old.Value)
		}
	}
}

// Commit closes the journal and makes every recorded edit permanent:
// removed slots release their anchors and, together with values replaced by
// Set, are handed to the disposer.
func (t *Table) Commit() {
	journal := t.journal
	t.journal = nil
	t.open = false
	for _, o := range journal {
		switch o.kind {
		case opRemove:
			t.release(o.slots)
		case opSet:
			t.disposeReplaced(o.old, o.value)
		}
	}
}

// Abort rolls back every recorded edit and closes the journal.
func (t *Table) Abort() {
	t.Rollback(0)
	t.open = false
}

// Pending returns the number of journaled edits.
func (t *Table) Pending() int {
	return len(t.journal)
}
