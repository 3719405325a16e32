package slots

import (
	"errors"
	"fmt"
)

// AccessError describes an out-of-range or malformed slot access.
//
// The buffer panics with an *AccessError. It indicates a broken traversal
// protocol and is never returned as a recoverable error.
type AccessError struct {
	Op    string
	Index int
	Len   int
	Msg   string
}

func (e *AccessError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("slots: %s at %d (len %d): %s", e.Op, e.Index, e.Len, e.Msg)
	}
	return fmt.Sprintf("slots: %s at %d out of range (len %d)", e.Op, e.Index, e.Len)
}

// IsAccessError reports whether err is or wraps an *AccessError.
func IsAccessError(err error) bool {
	var ae *AccessError
	return errors.As(err, &ae)
}

func (t *Table) fail(op string, idx int, msg string) {
	panic(&AccessError{Op: op, Index: idx, Len: t.Len(), Msg: msg})
}

// ValidationError reports a malformed group forest.
type ValidationError struct {
	Pos int
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("slots: invalid forest at %d: %s", e.Pos, e.Msg)
}
