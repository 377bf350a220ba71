package worklet

import (
	"context"
	"testing"
)

func TestRandWSPoolLocalPushPop(t *testing.T) {
	p := NewRandWSPool(AccessMPMC)
	th := CreateThread(func(context.Context, ...any) {})
	if err := p.Push(th); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if p.GetSize() != 1 {
		t.Fatalf("GetSize = %d, want 1", p.GetSize())
	}
	got, ok := p.Pop()
	if !ok || got.ID() != th.ID() {
		t.Fatal("expected local Pop to return the pushed unit")
	}
	if !p.IsEmpty() {
		t.Error("expected pool empty after draining")
	}
}

func TestRandWSPoolStealsFromPeerStream(t *testing.T) {
	ownerPool := NewRandWSPool(AccessMPMC)
	thiefPool := NewRandWSPool(AccessMPMC)

	ownerSched, err := NewScheduler(nil, SchedBasic, NewConfig(), ownerPool)
	if err != nil {
		t.Fatalf("NewScheduler owner: %v", err)
	}
	if _, err := NewStream(nil, ownerSched); err != nil {
		t.Fatalf("NewStream owner: %v", err)
	}
	thiefSched, err := NewScheduler(nil, SchedBasic, NewConfig(), thiefPool)
	if err != nil {
		t.Fatalf("NewScheduler thief: %v", err)
	}
	if _, err := NewStream(nil, thiefSched); err != nil {
		t.Fatalf("NewStream thief: %v", err)
	}

	th := CreateThread(func(context.Context, ...any) {})
	if err := ownerPool.Push(th); err != nil {
		t.Fatalf("Push: %v", err)
	}

	got, ok := thiefPool.Pop()
	if !ok {
		t.Fatal("expected thief to steal the unit from owner's pool")
	}
	if got.ID() != th.ID() {
		t.Error("stole the wrong unit")
	}
	if !ownerPool.IsEmpty() {
		t.Error("expected owner's pool to be empty after the steal")
	}
}

func TestRandWSPoolRemoveAndContains(t *testing.T) {
	p := NewRandWSPool(AccessMPMC)
	th := CreateThread(func(context.Context, ...any) {})
	_ = p.Push(th)
	if !p.Contains(th) {
		t.Error("expected Contains true")
	}
	if !p.Remove(th) {
		t.Error("expected Remove to succeed")
	}
	if p.Contains(th) {
		t.Error("expected Contains false after Remove")
	}
}
