package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/compose"
	"github.com/roach88/recompose/internal/ir"
	"github.com/roach88/recompose/internal/state"
	"github.com/roach88/recompose/internal/store"
	"github.com/roach88/recompose/internal/testutil"
	"github.com/roach88/recompose/internal/treespec"
)

// Harness runs one scenario against a fresh composition.
type Harness struct {
	store  *store.Store
	comp   *compose.Composition
	model  *treespec.Model
	tree   *changes.Tree
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation, with a
// fresh logical clock and sequential pass ids, so two runs of the same
// scenario produce identical traces.
//
// Execution flow:
// 1. Compile the tree and bind its state
// 2. Execute the steps, recording every pass in the database
// 3. Read the passes back and check expect clauses
// 4. Evaluate assertions against the trace and the final tree
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	prog, err := scenario.program()
	if err != nil {
		return nil, fmt.Errorf("failed to compile tree: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := state.NewTracker(state.WithLogger(logger))
	tree := changes.NewTree()

	opts := []compose.Option{
		compose.WithName(scenario.Name),
		compose.WithClock(compose.NewClock()),
		compose.WithPassIDs(testutil.NewSequentialIDs(scenario.Name)),
		compose.WithLogger(logger),
	}
	if n := scenario.Options.MoveLookahead; n != nil {
		opts = append(opts, compose.WithMoveLookahead(*n))
	}
	if n := scenario.Options.MaxReentries; n != nil {
		opts = append(opts, compose.WithMaxReentries(*n))
	}

	h := &Harness{
		store:  st,
		comp:   compose.New(tracker, tree, opts...),
		model:  treespec.Bind(prog, tracker),
		tree:   tree,
		logger: logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	result.Shape = tree.Shape()
	result.Tree = treespec.TreeValue(tree)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, tree) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	if step.Set != nil {
		values := make(map[string]ir.Value, len(step.Set))
		for name, raw := range step.Set {
			v, err := ir.FromGo(raw)
			if err != nil {
				return fmt.Errorf("set %s: %w", name, err)
			}
			values[name] = v
		}
		return h.model.SetAll(values)
	}

	var (
		res *compose.Result
		err error
	)
	if step.Compose {
		res, err = h.comp.Compose(ctx, h.model.Content())
	} else {
		res, err = h.comp.Recompose(ctx)
	}
	if res == nil {
		return fmt.Errorf("pass aborted: %w", err)
	}

	rec, err := store.RecordFromResult(res)
	if err != nil {
		return err
	}
	if err := h.store.WritePass(ctx, rec); err != nil {
		return fmt.Errorf("failed to write pass: %w", err)
	}
	trace, err := h.readPass(ctx, i, res.PassID)
	if err != nil {
		return err
	}
	result.Passes = append(result.Passes, trace)

	if step.Expect != nil {
		for _, msg := range checkExpect(i, step.Expect, trace) {
			result.AddError(msg)
		}
	}
	return nil
}

// readPass loads a pass back from the log, so the trace reflects what was
// persisted rather than what was produced.
func (h *Harness) readPass(ctx context.Context, step int, id string) (PassTrace, error) {
	rec, err := h.store.ReadPass(ctx, id)
	if err != nil {
		return PassTrace{}, fmt.Errorf("failed to read pass %s: %w", id, err)
	}
	list, err := h.store.ReadChanges(ctx, id)
	if err != nil {
		return PassTrace{}, fmt.Errorf("failed to read changes of %s: %w", id, err)
	}
	return PassTrace{
		Step:      step,
		PassID:    rec.ID,
		Kind:      rec.Kind,
		Seq:       rec.Seq,
		Executed:  rec.Executed,
		Skipped:   rec.Skipped,
		Reentered: rec.Reentered,
		Pending:   rec.Pending,
		Error:     rec.Error,
		Changes:   list,
	}, nil
}

func checkExpect(step int, e *Expect, p PassTrace) []string {
	var errs []string
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			errs = append(errs, fmt.Sprintf("steps[%d]: expected %d %s, got %d", step, *want, name, got))
		}
	}
	check("changes", e.Changes, len(p.Changes))
	check("inserts", e.Inserts, p.Changes.Count(changes.OpInsert))
	check("removes", e.Removes, p.Changes.Count(changes.OpRemove))
	check("moves", e.Moves, p.Changes.Count(changes.OpMove))
	check("attribute sets", e.Attributes, p.Changes.Count(changes.OpSetAttribute))
	check("executed scopes", e.Executed, p.Executed)
	check("skipped scopes", e.Skipped, p.Skipped)
	check("re-entered scopes", e.Reentered, p.Reentered)

	switch {
	case e.Error == "":
	case e.Error == "none":
		if p.Error != "" {
			errs = append(errs, fmt.Sprintf("steps[%d]: expected a clean pass, got %s", step, p.Error))
		}
	case !strings.Contains(p.Error, e.Error):
		errs = append(errs, fmt.Sprintf("steps[%d]: expected error containing %q, got %q", step, e.Error, p.Error))
	}
	return errs
}
