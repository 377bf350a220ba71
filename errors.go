package worklet

import (
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the reason an operation failed. It mirrors the error
// taxonomy every API call in the runtime commits to: successful calls never
// set a Kind, and every failure names exactly one.
type Kind int

const (
	// KindSuccess is the zero value; never attached to a returned *Error.
	KindSuccess Kind = iota
	// KindUninitialized means the runtime was used before Init or after
	// Finalize dropped the last reference.
	KindUninitialized
	// KindInvArg means a bad enum value or a disallowed nil was passed.
	KindInvArg
	// KindInvHandle means a handle was the nil sentinel.
	KindInvHandle
	// KindInvState means the operation is forbidden in the target's current
	// state (e.g. Revive on a unit that is not Terminated).
	KindInvState
	// KindInvContext means the operation is forbidden from the calling
	// context (e.g. a Thread-only call made from an external goroutine).
	KindInvContext
	// KindResource means an allocation failed.
	KindResource
	// KindMigrationNA means migration is unavailable for this unit/target.
	KindMigrationNA
	// KindFeatureNA means the capability is compiled out or unsupported by
	// the pool/scheduler implementation in use.
	KindFeatureNA
	// KindLockBusy means a TryLock-style call found the lock held.
	KindLockBusy
	// KindTimedOut means a timed wait's deadline elapsed first.
	KindTimedOut
	// KindSys means an underlying OS-level call failed.
	KindSys
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindUninitialized:
		return "uninitialized"
	case KindInvArg:
		return "invalid argument"
	case KindInvHandle:
		return "invalid handle"
	case KindInvState:
		return "invalid state"
	case KindInvContext:
		return "invalid context"
	case KindResource:
		return "resource exhausted"
	case KindMigrationNA:
		return "migration not available"
	case KindFeatureNA:
		return "feature not available"
	case KindLockBusy:
		return "lock busy"
	case KindTimedOut:
		return "timed out"
	case KindSys:
		return "system error"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by every fallible worklet
// operation. It wraps a Kind, the operation name that failed, and an
// optional underlying cause, matching the corpus's discriminated-result
// convention without a separate string table.
type Error struct {
	Timestamp time.Time
	Err       error
	Op        string
	Kind      Kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap returns the wrapped cause, enabling errors.Is/errors.As against it.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is supports errors.Is(err, ErrTimedOut) and friends by comparing Kind
// against the sentinel's Kind when target is one of the package sentinels.
func (e *Error) Is(target error) bool {
	var sentinel *Error
	if errors.As(target, &sentinel) {
		return e.Kind == sentinel.Kind
	}
	return false
}

// newError constructs an *Error with the current time.
func newError(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause, Timestamp: time.Now()}
}

// Sentinel errors for errors.Is comparisons, one per Kind.
var (
	ErrUninitialized = &Error{Kind: KindUninitialized}
	ErrInvArg        = &Error{Kind: KindInvArg}
	ErrInvHandle     = &Error{Kind: KindInvHandle}
	ErrInvState      = &Error{Kind: KindInvState}
	ErrInvContext    = &Error{Kind: KindInvContext}
	ErrResource      = &Error{Kind: KindResource}
	ErrMigrationNA   = &Error{Kind: KindMigrationNA}
	ErrFeatureNA     = &Error{Kind: KindFeatureNA}
	ErrLockBusy      = &Error{Kind: KindLockBusy}
	ErrTimedOut      = &Error{Kind: KindTimedOut}
	ErrSys           = &Error{Kind: KindSys}
)
