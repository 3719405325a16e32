package compose

import (
	"errors"
	"fmt"

	"github.com/roach88/recompose/internal/slots"
	"github.com/roach88/recompose/internal/state"
)

// ProtocolError reports a broken caller contract: unbalanced groups, a
// reentrant pass, use of a Composer after its pass or a call made in the
// wrong place.
//
// Protocol errors are fatal. The composer rolls the whole pass back and
// panics with the *ProtocolError; it is never returned.
type ProtocolError struct {
	Code    ProtocolErrorCode
	Message string
}

// ProtocolErrorCode categorizes protocol violations.
type ProtocolErrorCode string

const (
	// ErrCodeUnbalanced indicates an EndGroup without a matching StartGroup,
	// or content returning with groups left open.
	ErrCodeUnbalanced ProtocolErrorCode = "UNBALANCED_GROUPS"

	// ErrCodeReentrant indicates a second pass started on a composition
	// while one was running.
	ErrCodeReentrant ProtocolErrorCode = "REENTRANT_PASS"

	// ErrCodeClosed indicates a Composer used after its pass finished.
	ErrCodeClosed ProtocolErrorCode = "COMPOSER_CLOSED"

	// ErrCodeMisplaced indicates a call outside the construct it belongs
	// to, such as Attr outside a node or SkipToGroupEnd in new content.
	ErrCodeMisplaced ProtocolErrorCode = "MISPLACED_CALL"

	// ErrCodeCorrupt indicates the slot table does not hold the structure
	// the cursor expects.
	ErrCodeCorrupt ProtocolErrorCode = "CORRUPT_TABLE"
)

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func protocolf(code ProtocolErrorCode, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsProtocolError returns true if the error is a protocol violation.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// DuplicateKeyError reports two children of one parent sharing an explicit key.
// The duplicate child is not composed; its siblings are unaffected.
type DuplicateKeyError struct {
	Key    slots.Key
	Parent slots.Key
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("DUPLICATE_KEY: key %s appears more than once in %s", e.Key, e.Parent)
}

// IsDuplicateKeyError returns true if the error is or wraps a *DuplicateKeyError.
func IsDuplicateKeyError(err error) bool {
	var de *DuplicateKeyError
	return errors.As(err, &de)
}

// ComputationError reports content that panicked. The group's slot range was
// rolled back to its state before the pass and the enclosing scope was left
// Invalid so a later pass retries it.
type ComputationError struct {
	Key   slots.Key
	Scope state.ScopeID
	Value any
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("COMPUTATION_FAILED: group %s (scope %d): %v", e.Key, e.Scope, e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *ComputationError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsComputationError returns true if the error is or wraps a *ComputationError.
func IsComputationError(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}

// PassError is a scheduling problem detected while draining pending scopes.
// The affected scopes stay pending for a later pass.
type PassError struct {
	Code    PassErrorCode
	Message string
	Pass    string
	Scope   state.ScopeID
	Details map[string]string
}

// PassErrorCode categorizes pass errors.
type PassErrorCode string

const (
	// ErrCodeCycleDetected indicates a scope invalidated again after being
	// re-entered in the same pass.
	ErrCodeCycleDetected PassErrorCode = "CYCLE_DETECTED"

	// ErrCodeQuotaExceeded indicates the pass hit its re-entry limit.
	ErrCodeQuotaExceeded PassErrorCode = "QUOTA_EXCEEDED"
)

func (e *PassError) Error() string {
	if e.Pass != "" {
		return fmt.Sprintf("%s: %s (pass=%s)", e.Code, e.Message, e.Pass)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCycleError returns true if the error is a cycle detection error.
func IsCycleError(err error) bool {
	var pe *PassError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeCycleDetected
	}
	return false
}

// IsQuotaError returns true if the error is a re-entry quota error.
func IsQuotaError(err error) bool {
	var pe *PassError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeQuotaExceeded
	}
	return false
}

// abort unwinds a pass whose context was cancelled.
type abort struct {
	err error
}

// fatal reports whether a recovered panic must unwind the whole pass rather
// than stop at a group boundary.
func fatal(r any) bool {
	switch v := r.(type) {
	case abort, *ProtocolError:
		return true
	case error:
		return slots.IsAccessError(v)
	}
	return false
}
