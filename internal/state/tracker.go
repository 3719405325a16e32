package state

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

// StateID identifies a state cell.
type StateID uint64

// ScopeID identifies a recomposition scope.
type ScopeID uint64

// OwnerID identifies the composition that owns a scope.
type OwnerID uint64

// NoScope is the zero ScopeID.
const NoScope ScopeID = 0

// Validity is the state of a recomposition scope.
type Validity uint8

const (
	Valid Validity = iota
	Invalid
	Disposed
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case Disposed:
		return "disposed"
	}
	return "unknown"
}

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	readers map[StateID]map[ScopeID]struct{}
}

type scopeEntry struct {
	owner    OwnerID
	parent   ScopeID
	validity Validity
	reads    map[StateID]struct{}
}

// Tracker records read edges and turns writes into invalidations.
// It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	scopes  map[ScopeID]*scopeEntry
	dirty   map[OwnerID]map[ScopeID]struct{}
	batch   int
	pending map[OwnerID]struct{}
	notify  func(OwnerID)

	shards [shardCount]shard

	nextScope atomic.Uint64
	nextState atomic.Uint64
	nextOwner atomic.Uint64

	logger *slog.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the logger used for invalidation diagnostics.
func WithLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithNotifier sets the callback invoked, outside any tracker lock, when an
// owner gains pending work.
func WithNotifier(fn func(OwnerID)) TrackerOption {
	return func(t *Tracker) {
		t.notify = fn
	}
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		scopes:  make(map[ScopeID]*scopeEntry),
		dirty:   make(map[OwnerID]map[ScopeID]struct{}),
		pending: make(map[OwnerID]struct{}),
		logger:  slog.Default(),
	}
	for i := range t.shards {
		t.shards[i].readers = make(map[StateID]map[ScopeID]struct{})
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetNotifier replaces the pending-work callback.
func (t *Tracker) SetNotifier(fn func(OwnerID)) {
	t.mu.Lock()
	t.notify = fn
	t.mu.Unlock()
}

// NewOwner allocates an owner id for a composition.
func (t *Tracker) NewOwner() OwnerID {
	return OwnerID(t.nextOwner.Add(1))
}

// NewStateID allocates a state id.
func (t *Tracker) NewStateID() StateID {
	return StateID(t.nextState.Add(1))
}

func (t *Tracker) shardFor(id StateID) *shard {
	return &t.shards[uint64(id)%shardCount]
}

// RegisterScope creates a Valid scope owned by owner and nested in parent.
func (t *Tracker) RegisterScope(owner OwnerID, parent ScopeID) ScopeID {
	id := ScopeID(t.nextScope.Add(1))
	t.mu.Lock()
	t.scopes[id] = &scopeEntry{owner: owner, parent: parent, reads: make(map[StateID]struct{})}
	t.mu.Unlock()
	return id
}

// RecordRead registers scope as a reader of state.
// Reads recorded for unknown or disposed scopes are ignored.
func (t *Tracker) RecordRead(state StateID, scope ScopeID) {
	t.mu.Lock()
	e, ok := t.scopes[scope]
	if !ok {
		t.mu.Unlock()
		return
	}
	e.reads[state] = struct{}{}
	t.mu.Unlock()

	sh := t.shardFor(state)
	sh.mu.Lock()
	readers := sh.readers[state]
	if readers == nil {
		readers = make(map[ScopeID]struct{})
		sh.readers[state] = readers
	}
	readers[scope] = struct{}{}
	sh.mu.Unlock()
}

// BeginPass prepares scope for re-execution: its previous reads are dropped,
// it becomes Valid and any pending re-entry is cleared.
func (t *Tracker) BeginPass(scope ScopeID) {
	t.mu.Lock()
	e, ok := t.scopes[scope]
	if !ok {
		t.mu.Unlock()
		return
	}
	reads := e.reads
	e.reads = make(map[StateID]struct{})
	e.validity = Valid
	t.clearDirtyLocked(e.owner, scope)
	t.mu.Unlock()

	t.dropReader(scope, reads)
}

func (t *Tracker) dropReader(scope ScopeID, reads map[StateID]struct{}) {
	for state := range reads {
		sh := t.shardFor(state)
		sh.mu.Lock()
		if readers := sh.readers[state]; readers != nil {
			delete(readers, scope)
			if len(readers) == 0 {
				delete(sh.readers, state)
			}
		}
		sh.mu.Unlock()
	}
}

// NotifyWrite invalidates every current reader of state. All readers change
// validity under a single lock hold, so no observer of the tracker sees the
// write applied to some readers and not others. Returns the number of
// scopes invalidated.
func (t *Tracker) NotifyWrite(state StateID) int {
	sh := t.shardFor(state)
	sh.mu.Lock()
	readers := make([]ScopeID, 0, len(sh.readers[state]))
	for id := range sh.readers[state] {
		readers = append(readers, id)
	}
	sh.mu.Unlock()
	if len(readers) == 0 {
		return 0
	}

	t.mu.Lock()
	owners := make(map[OwnerID]struct{})
	n := 0
	for _, id := range readers {
		e, ok := t.scopes[id]
		if !ok || e.validity == Disposed {
			continue
		}
		if t.invalidateLocked(id, e) {
			owners[e.owner] = struct{}{}
		}
		n++
	}
	notify := t.collectLocked(owners)
	t.mu.Unlock()

	t.logger.Debug("state write invalidated scopes", "state", uint64(state), "scopes", n)
	t.fire(notify)
	return n
}

// Invalidate marks scope Invalid and schedules it, as if a state it read had
// changed. Used to retry scopes whose execution failed.
func (t *Tracker) Invalidate(scope ScopeID) {
	t.mu.Lock()
	e, ok := t.scopes[scope]
	if !ok {
		t.mu.Unlock()
		return
	}
	var notify func()
	if t.invalidateLocked(scope, e) {
		notify = t.collectLocked(map[OwnerID]struct{}{e.owner: {}})
	}
	t.mu.Unlock()
	t.fire(notify)
}

// Retry marks scope Invalid and pending without notifying its owner. The
// scope is picked up by the owner's next pass, whatever triggers it.
func (t *Tracker) Retry(scope ScopeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.scopes[scope]; ok {
		t.invalidateLocked(scope, e)
	}
}

// invalidateLocked marks the scope and reports whether its owner gained new
// pending work.
func (t *Tracker) invalidateLocked(id ScopeID, e *scopeEntry) bool {
	e.validity = Invalid
	set := t.dirty[e.owner]
	if set == nil {
		set = make(map[ScopeID]struct{})
		t.dirty[e.owner] = set
	}
	if _, ok := set[id]; ok {
		return false
	}
	set[id] = struct{}{}
	return true
}

// collectLocked returns the notification to fire once the lock is released,
// or defers the owners when inside a Batch.
func (t *Tracker) collectLocked(owners map[OwnerID]struct{}) func() {
	if len(owners) == 0 {
		return nil
	}
	if t.batch > 0 {
		for o := range owners {
			t.pending[o] = struct{}{}
		}
		return nil
	}
	return t.notifierLocked(owners)
}

func (t *Tracker) notifierLocked(owners map[OwnerID]struct{}) func() {
	fn := t.notify
	if fn == nil {
		return nil
	}
	ids := make([]OwnerID, 0, len(owners))
	for o := range owners {
		ids = append(ids, o)
	}
	slices.Sort(ids)
	return func() {
		for _, o := range ids {
			fn(o)
		}
	}
}

func (t *Tracker) fire(notify func()) {
	if notify != nil {
		notify()
	}
}

// Batch runs fn and coalesces the pending-work notifications of every write
// made meanwhile into one notification per owner, delivered when the
// outermost Batch returns. Invalidation itself is not deferred.
func (t *Tracker) Batch(fn func()) {
	t.mu.Lock()
	t.batch++
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.batch--
		var notify func()
		if t.batch == 0 && len(t.pending) > 0 {
			notify = t.notifierLocked(t.pending)
			t.pending = make(map[OwnerID]struct{})
		}
		t.mu.Unlock()
		t.fire(notify)
	}()
	fn()
}

// Cancel drops a pending re-entry of scope. Cancelling a scope that has no
// pending re-entry, was already re-executed or was already cancelled is a
// no-op. Reports whether a pending re-entry was dropped.
func (t *Tracker) Cancel(scope ScopeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.scopes[scope]
	if !ok {
		return false
	}
	return t.clearDirtyLocked(e.owner, scope)
}

func (t *Tracker) clearDirtyLocked(owner OwnerID, scope ScopeID) bool {
	set := t.dirty[owner]
	if _, ok := set[scope]; !ok {
		return false
	}
	delete(set, scope)
	if len(set) == 0 {
		delete(t.dirty, owner)
	}
	return true
}

// Dispose moves scope to the terminal Disposed state and forgets its reads
// and any pending re-entry. Later writes to state it read are no-ops for it.
func (t *Tracker) Dispose(scope ScopeID) {
	t.mu.Lock()
	e, ok := t.scopes[scope]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.scopes, scope)
	t.clearDirtyLocked(e.owner, scope)
	reads := e.reads
	t.mu.Unlock()

	t.dropReader(scope, reads)
}

// DisposeOwner disposes every scope of owner.
func (t *Tracker) DisposeOwner(owner OwnerID) {
	t.mu.Lock()
	var ids []ScopeID
	for id, e := range t.scopes {
		if e.owner == owner {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()
	for _, id := range ids {
		t.Dispose(id)
	}
}

// ForgetState drops every reader edge of a state that no longer exists.
func (t *Tracker) ForgetState(state StateID) {
	sh := t.shardFor(state)
	sh.mu.Lock()
	delete(sh.readers, state)
	sh.mu.Unlock()
}

// Validity reports the state of scope. Scopes that were allocated and are no
// longer registered are Disposed.
func (t *Tracker) Validity(scope ScopeID) Validity {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.scopes[scope]; ok {
		return e.validity
	}
	return Disposed
}

// HasPending reports whether owner has scopes awaiting re-entry.
func (t *Tracker) HasPending(owner OwnerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dirty[owner]) > 0
}

// TopLevelDirty returns owner's pending scopes that are not nested inside
// another pending scope, in ascending id order. Re-executing an ancestor
// subsumes its pending descendants.
func (t *Tracker) TopLevelDirty(owner OwnerID) []ScopeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.dirty[owner]
	out := make([]ScopeID, 0, len(set))
	for id := range set {
		if !t.hasDirtyAncestorLocked(set, id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (t *Tracker) hasDirtyAncestorLocked(set map[ScopeID]struct{}, id ScopeID) bool {
	e := t.scopes[id]
	for e != nil && e.parent != NoScope {
		if _, ok := set[e.parent]; ok {
			return true
		}
		e = t.scopes[e.parent]
	}
	return false
}

// Readers returns the scopes currently registered as readers of state.
func (t *Tracker) Readers(state StateID) []ScopeID {
	sh := t.shardFor(state)
	sh.mu.Lock()
	out := make([]ScopeID, 0, len(sh.readers[state]))
	for id := range sh.readers[state] {
		out = append(out, id)
	}
	sh.mu.Unlock()
	slices.Sort(out)
	return out
}

// Reads returns the states scope read during its last execution.
func (t *Tracker) Reads(scope ScopeID) []StateID {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.scopes[scope]
	if !ok {
		return nil
	}
	out := make([]StateID, 0, len(e.reads))
	for id := range e.reads {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Scopes returns the number of registered scopes.
func (t *Tracker) Scopes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.scopes)
}
