package worklet

import (
	"context"
	"errors"
	"testing"
)

func TestFutureSetValue(t *testing.T) {
	f := NewFuture()
	if err := f.SetValue(7); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	v, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if v.(int) != 7 {
		t.Errorf("Wait value = %v, want 7", v)
	}
}

func TestFutureSetError(t *testing.T) {
	f := NewFuture()
	cause := errors.New("computation failed")
	if err := f.SetError(cause); err != nil {
		t.Fatalf("SetError: %v", err)
	}
	v, err := f.Wait(context.Background())
	if v != nil {
		t.Errorf("expected nil value alongside error, got %v", v)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected Wait to surface the set error, got %v", err)
	}
}

func TestFutureOnlyOneSetWins(t *testing.T) {
	f := NewFuture()
	if err := f.SetValue(1); err != nil {
		t.Fatalf("first SetValue: %v", err)
	}
	if err := f.SetError(errors.New("too late")); err == nil {
		t.Error("expected second Set* call to fail")
	}
}

func TestFutureReady(t *testing.T) {
	f := NewFuture()
	if f.Ready() {
		t.Error("expected Ready false before any Set*")
	}
	_ = f.SetValue(1)
	if !f.Ready() {
		t.Error("expected Ready true after SetValue")
	}
}
