package worklet

import (
	"errors"
	"testing"
)

func TestErrorString(t *testing.T) {
	e := newError("Lock", KindLockBusy, nil)
	if got := e.Error(); got != "Lock: lock busy" {
		t.Errorf("unexpected message: %q", got)
	}

	wrapped := newError("Join", KindTimedOut, errors.New("deadline exceeded"))
	if got := wrapped.Error(); got != "Join: timed out: deadline exceeded" {
		t.Errorf("unexpected wrapped message: %q", got)
	}
}

func TestErrorIsSentinel(t *testing.T) {
	err := newError("TryLock", KindLockBusy, ErrLockBusy)
	if !errors.Is(err, ErrLockBusy) {
		t.Error("expected errors.Is to match ErrLockBusy")
	}
	if errors.Is(err, ErrTimedOut) {
		t.Error("did not expect errors.Is to match a different sentinel")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := newError("Op", KindSys, cause)
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the underlying cause")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindSuccess:       "success",
		KindInvArg:        "invalid argument",
		KindMigrationNA:   "migration not available",
		Kind(999):         "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
