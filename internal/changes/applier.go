package changes

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Applier executes changes against a retained tree. Implementations are
// supplied by rendering backends. The composer calls Apply once per change,
// in order, when a pass is finalized.
type Applier interface {
	Apply(Change) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(Change) error

func (f ApplierFunc) Apply(c Change) error { return f(c) }

// ApplyAll applies every change, stopping at the first failure.
func ApplyAll(a Applier, list List) error {
	for i, c := range list {
		if err := a.Apply(c); err != nil {
			return fmt.Errorf("change %d (%s): %w", i, c, err)
		}
	}
	return nil
}

// Recorder is an Applier that keeps every change it receives.
type Recorder struct {
	mu      sync.Mutex
	changes List
}

// Apply records c.
func (r *Recorder) Apply(c Change) error {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
	return nil
}

// Changes returns a copy of the recorded changes.
func (r *Recorder) Changes() List {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(List(nil), r.changes...)
}

// Take returns the recorded changes and resets the recorder.
func (r *Recorder) Take() List {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.changes
	r.changes = nil
	return out
}

// Multi fans each change out to several appliers. Every applier sees every
// change; failures are aggregated.
type Multi []Applier

// Apply forwards c to each applier.
func (m Multi) Apply(c Change) error {
	var result *multierror.Error
	for _, a := range m {
		if err := a.Apply(c); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
