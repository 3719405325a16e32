package recomposer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/compose"
	"github.com/roach88/recompose/internal/state"
)

// PassSink receives every committed pass. store.Sink persists them.
type PassSink interface {
	WritePass(ctx context.Context, res *compose.Result) error
}

// Recomposer owns a tracker and the compositions built on it.
type Recomposer struct {
	tracker *state.Tracker
	queue   *ownerQueue
	workers int
	sink    PassSink
	logger  *slog.Logger
	clock   *compose.Clock

	mu    sync.Mutex
	comps map[state.OwnerID]*entry
}

// entry serializes passes over one composition.
type entry struct {
	mu   sync.Mutex
	comp *compose.Composition
}

// Option configures a Recomposer.
type Option func(*Recomposer)

// WithWorkers bounds how many compositions recompose at once.
// Default: runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(r *Recomposer) {
		r.workers = n
	}
}

// WithSink persists every committed pass.
func WithSink(s PassSink) Option {
	return func(r *Recomposer) {
		r.sink = s
	}
}

// WithLogger sets the logger for the recomposer and its tracker.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recomposer) {
		r.logger = l
	}
}

// WithClock sets the clock shared by every composition, so pass sequence
// numbers are ordered across compositions.
func WithClock(c *compose.Clock) Option {
	return func(r *Recomposer) {
		r.clock = c
	}
}

// New creates a Recomposer with its own tracker.
func New(opts ...Option) *Recomposer {
	r := &Recomposer{
		queue:   newOwnerQueue(),
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
		clock:   compose.NewClock(),
		comps:   make(map[state.OwnerID]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	r.tracker = state.NewTracker(state.WithLogger(r.logger), state.WithNotifier(r.notify))
	return r
}

// Tracker returns the shared tracker. State cells read by compositions of
// this Recomposer must be created on it.
func (r *Recomposer) Tracker() *state.Tracker { return r.tracker }

// NewComposition creates and registers a composition on the shared tracker
// and clock. Options given here override the defaults.
func (r *Recomposer) NewComposition(applier changes.Applier, opts ...compose.Option) *compose.Composition {
	base := []compose.Option{compose.WithClock(r.clock), compose.WithLogger(r.logger)}
	comp := compose.New(r.tracker, applier, append(base, opts...)...)

	r.mu.Lock()
	r.comps[comp.Owner()] = &entry{comp: comp}
	r.mu.Unlock()

	r.logger.Info("composition registered", "composition", comp.Name(), "owner", comp.Owner())
	return comp
}

func (r *Recomposer) entry(owner state.OwnerID) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.comps[owner]
}

func (r *Recomposer) lookup(comp *compose.Composition) (*entry, error) {
	e := r.entry(comp.Owner())
	if e == nil || e.comp != comp {
		return nil, fmt.Errorf("composition %s is not registered", comp.Name())
	}
	return e, nil
}

// notify is the tracker's notifier. It runs on the writing goroutine.
func (r *Recomposer) notify(owner state.OwnerID) {
	if !r.queue.Enqueue(owner) {
		r.logger.Debug("invalidation after stop", "owner", owner)
	}
}

// Compose runs a full pass on a registered composition, serialized with
// the recompositions Run schedules for it.
func (r *Recomposer) Compose(ctx context.Context, comp *compose.Composition, content compose.Content) (*compose.Result, error) {
	e, err := r.lookup(comp)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.finish(ctx, e, func() (*compose.Result, error) {
		return e.comp.Compose(ctx, content)
	})
}

// Dispose disposes a registered composition and forgets it.
func (r *Recomposer) Dispose(ctx context.Context, comp *compose.Composition) (*compose.Result, error) {
	e, err := r.lookup(comp)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	r.mu.Lock()
	delete(r.comps, comp.Owner())
	r.mu.Unlock()

	r.logger.Info("composition disposed", "composition", comp.Name())
	return r.finish(ctx, e, func() (*compose.Result, error) {
		return e.comp.Dispose(ctx)
	})
}

// finish runs a pass, turning panics into errors, and hands the result to
// the sink. Callers hold e.mu.
func (r *Recomposer) finish(ctx context.Context, e *entry, pass func() (*compose.Result, error)) (res *compose.Result, err error) {
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("composition %s: pass panicked: %v", e.comp.Name(), p)
			}
		}()
		res, err = pass()
	}()
	if res != nil && r.sink != nil {
		if serr := r.sink.WritePass(ctx, res); serr != nil {
			err = multierror.Append(err, fmt.Errorf("write pass %s: %w", res.PassID, serr))
		}
	}
	return res, err
}

// recomposeOwner re-enters the pending scopes of one composition.
// It returns nil and no error when the composition is gone or has no
// pending work.
func (r *Recomposer) recomposeOwner(ctx context.Context, owner state.OwnerID) (*compose.Result, error) {
	e := r.entry(owner)
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.comp.HasPendingWork() {
		return nil, nil
	}

	res, err := r.finish(ctx, e, func() (*compose.Result, error) {
		return e.comp.Recompose(ctx)
	})
	// The quota leaves scopes that were never tried; queue another pass.
	if compose.IsQuotaError(err) {
		r.queue.Enqueue(owner)
	}
	return res, err
}

// outcome is the result of recomposing one owner.
type outcome struct {
	owner state.OwnerID
	res   *compose.Result
	err   error
}

// recomposeBatch recomposes distinct owners concurrently. Failures are
// logged; they never stop the batch. Outcomes keep the order of owners.
func (r *Recomposer) recomposeBatch(ctx context.Context, owners []state.OwnerID) []outcome {
	out := make([]outcome, len(owners))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, owner := range owners {
		g.Go(func() error {
			res, err := r.recomposeOwner(ctx, owner)
			out[i] = outcome{owner: owner, res: res, err: err}
			if res != nil {
				r.logger.Debug("recomposed",
					"composition", res.Composition,
					"pass", res.PassID,
					"seq", res.Seq,
					"changes", len(res.Changes),
					"reentered", res.Reentered,
				)
			}
			if err != nil {
				r.logger.Error("recompose failed", "owner", owner, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Run drains invalidation notifications until ctx is cancelled or Stop is
// called. Must be called from exactly one goroutine.
//
// Pass errors are logged and the loop continues: failed scopes stay
// pending and are retried on the next invalidation of their composition.
func (r *Recomposer) Run(ctx context.Context) error {
	r.logger.Info("recomposer starting", "workers", r.workers)

	for {
		if owners := r.queue.Drain(); len(owners) > 0 {
			r.recomposeBatch(ctx, owners)
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Info("recomposer stopping: context cancelled")
			r.queue.Close()
			return ctx.Err()

		case <-r.queue.Wait():
			if r.queue.Closed() && r.queue.Len() == 0 {
				r.logger.Info("recomposer stopping: queue closed")
				return nil
			}
		}
	}
}

// RecomposeNow synchronously drains the queue, including compositions
// queued by the passes it runs, and returns every committed pass.
//
// A composition whose pass reports a cycle is not recomposed again by the
// same call; its scopes stay pending.
func (r *Recomposer) RecomposeNow(ctx context.Context) ([]*compose.Result, error) {
	var (
		all     []*compose.Result
		errs    *multierror.Error
		stalled = make(map[state.OwnerID]struct{})
	)
	for {
		if err := ctx.Err(); err != nil {
			return all, multierror.Append(errs, err).ErrorOrNil()
		}
		owners := slices.DeleteFunc(r.queue.Drain(), func(o state.OwnerID) bool {
			_, skip := stalled[o]
			return skip
		})
		if len(owners) == 0 {
			return all, errs.ErrorOrNil()
		}
		for _, o := range r.recomposeBatch(ctx, owners) {
			if o.res != nil {
				all = append(all, o.res)
			}
			if o.err != nil {
				errs = multierror.Append(errs, o.err)
			}
			if compose.IsCycleError(o.err) {
				stalled[o.owner] = struct{}{}
			}
		}
	}
}

// Pending returns the number of compositions waiting in the queue.
func (r *Recomposer) Pending() int {
	return r.queue.Len()
}

// Stop closes the queue; Run returns once it is empty.
func (r *Recomposer) Stop() {
	r.queue.Close()
}
