package harness

import (
	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/ir"
)

// PassTrace is one pass of a scenario, as read back from the pass log.
type PassTrace struct {
	Step      int
	PassID    string
	Kind      string
	Seq       int64
	Executed  int
	Skipped   int
	Reentered int
	Pending   bool
	Error     string
	Changes   changes.List
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion matched.
	Pass bool

	// Passes holds the passes in execution order.
	Passes []PassTrace

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string

	// Shape is the final tree structure, as rendered by Tree.Shape.
	Shape string

	// Tree is the canonical value of the final tree.
	Tree ir.Value
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Passes: []PassTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// changesFor returns the changes of the pass run by step, or of every pass
// when step is nil.
func (r *Result) changesFor(step *int) changes.List {
	var out changes.List
	for _, p := range r.Passes {
		if step == nil || p.Step == *step {
			out = append(out, p.Changes...)
		}
	}
	return out
}
