package compose

import (
	"github.com/roach88/recompose/internal/changes"
)

// PassKind distinguishes full passes from re-entry-only passes.
type PassKind string

const (
	PassCompose   PassKind = "compose"
	PassRecompose PassKind = "recompose"
	PassDispose   PassKind = "dispose"
)

// Result describes a committed pass.
type Result struct {
	// Composition names the composition the pass ran on.
	Composition string

	// PassID uniquely identifies the pass.
	PassID string

	// Seq orders the pass among all passes sharing a clock.
	Seq int64

	Kind PassKind

	// Changes is the change list handed to the applier.
	Changes changes.List

	// Executed counts scope bodies that ran.
	Executed int

	// Skipped counts scopes reused without running.
	Skipped int

	// Reentered counts pending scopes re-entered individually.
	Reentered int

	// Pending reports whether scopes remain pending after the pass.
	Pending bool

	// Err aggregates the recoverable failures of the pass: computation,
	// duplicate key, cycle and quota errors. Nil when the pass was clean.
	Err error
}
