package compose

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/slots"
	"github.com/roach88/recompose/internal/state"
)

const (
	// DefaultMoveLookahead bounds how many sibling groups a keyed search
	// scans before treating the key as new.
	DefaultMoveLookahead = 256

	// DefaultMaxReentries bounds the re-entries of a single pass.
	DefaultMaxReentries = 1000
)

var rootKey = slots.K("root")

// Composition is a long-lived slot table plus the content that fills it.
//
// Passes over one Composition are strictly sequential; starting a pass while
// another is running on the same Composition is a protocol violation.
type Composition struct {
	name    string
	owner   state.OwnerID
	table   *slots.Table
	tracker *state.Tracker
	applier changes.Applier

	scopes     map[state.ScopeID]*Scope
	nextHandle changes.Handle
	busy       atomic.Bool
	disposed   bool

	lookahead    int
	maxReentries int
	clock        *Clock
	ids          IDGenerator
	saved        *state.SaveRegistry
	logger       *slog.Logger
}

// Option configures a Composition.
type Option func(*Composition)

// WithName sets the composition name used in logs and results.
func WithName(name string) Option {
	return func(c *Composition) {
		c.name = name
	}
}

// WithMoveLookahead sets how many sibling groups a keyed search scans.
// A negative value scans the whole parent.
func WithMoveLookahead(n int) Option {
	return func(c *Composition) {
		c.lookahead = n
	}
}

// WithMaxReentries sets the per-pass re-entry quota. Zero disables it.
func WithMaxReentries(n int) Option {
	return func(c *Composition) {
		c.maxReentries = n
	}
}

// WithClock sets the logical clock that stamps passes.
func WithClock(clock *Clock) Option {
	return func(c *Composition) {
		c.clock = clock
	}
}

// WithPassIDs sets the pass id generator.
func WithPassIDs(g IDGenerator) Option {
	return func(c *Composition) {
		c.ids = g
	}
}

// WithSaveRegistry sets the registry used by Saveable.
func WithSaveRegistry(r *state.SaveRegistry) Option {
	return func(c *Composition) {
		c.saved = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Composition) {
		c.logger = l
	}
}

// New creates an empty composition whose changes go to applier.
func New(tracker *state.Tracker, applier changes.Applier, opts ...Option) *Composition {
	c := &Composition{
		owner:        tracker.NewOwner(),
		tracker:      tracker,
		applier:      applier,
		scopes:       make(map[state.ScopeID]*Scope),
		lookahead:    DefaultMoveLookahead,
		maxReentries: DefaultMaxReentries,
		clock:        NewClock(),
		ids:          UUIDv7Generator{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.name == "" {
		c.name = fmt.Sprintf("composition-%d", c.owner)
	}
	c.table = slots.New(slots.WithDisposer(c.dispose))
	return c
}

// Name returns the composition name.
func (c *Composition) Name() string { return c.name }

// Owner returns the tracker owner id of the composition.
func (c *Composition) Owner() state.OwnerID { return c.owner }

// Table exposes the slot table for inspection. It must not be modified.
func (c *Composition) Table() *slots.Table { return c.table }

// Tracker returns the tracker shared with other compositions.
func (c *Composition) Tracker() *state.Tracker { return c.tracker }

// HasPendingWork reports whether scopes await re-entry.
func (c *Composition) HasPendingWork() bool {
	return c.tracker.HasPending(c.owner)
}

// Scope returns the live scope with the given id.
func (c *Composition) Scope(id state.ScopeID) (*Scope, bool) {
	s, ok := c.scopes[id]
	return s, ok
}

// Compose runs content as a full pass from the root, then re-enters any
// scopes still pending, commits, and applies the change list.
//
// The returned error aggregates recoverable failures (see Result.Err) and
// applier errors. It is ctx.Err() with nothing committed when the context
// is cancelled mid-pass.
func (c *Composition) Compose(ctx context.Context, content Content) (*Result, error) {
	return c.run(ctx, PassCompose, func(cp *Composer) {
		cp.scope(rootKey, content, nil, true)
		cp.finishRoot()
		cp.drain()
	})
}

// Recompose re-enters pending scopes only, in document order.
func (c *Composition) Recompose(ctx context.Context) (*Result, error) {
	return c.run(ctx, PassRecompose, func(cp *Composer) {
		cp.drain()
	})
}

// Dispose removes the whole trace, emitting removals for every root-level
// node and disposing every scope and remembered value. The composition is
// unusable afterwards.
func (c *Composition) Dispose(ctx context.Context) (*Result, error) {
	res, err := c.run(ctx, PassDispose, func(cp *Composer) {
		cp.removeRange(0, c.table.Len())
	})
	c.disposed = true
	c.tracker.DisposeOwner(c.owner)
	return res, err
}

func (c *Composition) run(ctx context.Context, kind PassKind, body func(*Composer)) (res *Result, err error) {
	if !c.busy.CompareAndSwap(false, true) {
		panic(protocolf(ErrCodeReentrant, "composition %s is already running a pass", c.name))
	}
	defer c.busy.Store(false)
	if c.disposed {
		panic(protocolf(ErrCodeClosed, "composition %s is disposed", c.name))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seq := c.clock.Next()
	passID := c.ids.Generate()
	cp := newComposer(ctx, c, passID)
	c.table.Begin()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		c.table.Abort()
		cp.closed = true
		// Executed scopes lost the reads recorded on the rolled back
		// trace; run them again next time.
		for _, id := range cp.executed {
			c.tracker.Retry(id)
		}
		if a, ok := r.(abort); ok {
			c.logger.Debug("pass cancelled", "composition", c.name, "pass", passID, "err", a.err)
			res, err = nil, a.err
			return
		}
		c.logger.Error("pass aborted", "composition", c.name, "pass", passID, "panic", r)
		panic(r)
	}()

	body(cp)
	if len(cp.frames) != 1 {
		panic(protocolf(ErrCodeUnbalanced, "%d groups left open at end of pass", len(cp.frames)-1))
	}
	c.table.Commit()
	cp.closed = true

	res = &Result{
		Composition: c.name,
		PassID:      passID,
		Seq:         seq,
		Kind:        kind,
		Changes:     cp.changes,
		Executed:    len(cp.executed),
		Skipped:     cp.skipped,
		Reentered:   cp.reentered,
		Pending:     c.tracker.HasPending(c.owner),
		Err:         cp.errs.ErrorOrNil(),
	}

	errs := cp.errs
	if c.applier != nil {
		if aerr := changes.ApplyAll(c.applier, cp.changes); aerr != nil {
			errs = multierror.Append(errs, fmt.Errorf("apply: %w", aerr))
		}
	}

	c.logger.Debug("pass complete",
		"composition", c.name,
		"pass", passID,
		"seq", seq,
		"kind", string(kind),
		"changes", len(cp.changes),
		"executed", res.Executed,
		"skipped", res.Skipped,
		"reentered", res.Reentered,
	)
	if res.Err != nil {
		c.logger.Warn("pass completed with errors", "composition", c.name, "pass", passID, "err", res.Err)
	}
	return res, errs.ErrorOrNil()
}

// dispose receives slots leaving the table for good.
func (c *Composition) dispose(s slots.Slot) {
	switch s.Kind {
	case slots.KindGroupStart:
		if sc, ok := s.Aux.(*Scope); ok {
			c.tracker.Dispose(sc.id)
			delete(c.scopes, sc.id)
		}
	case slots.KindValue:
		switch v := s.Value.(type) {
		case *remembered:
			if d, ok := v.value.(Disposable); ok {
				d.Dispose()
			}
		case Disposable:
			v.Dispose()
		}
	}
}

func (c *Composition) newHandle() changes.Handle {
	c.nextHandle++
	return c.nextHandle
}
