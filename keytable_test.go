package worklet

import (
	"context"
	"testing"
)

func TestKeytableGetSet(t *testing.T) {
	kt := newKeytable(4)
	if _, ok := kt.Get(1); ok {
		t.Error("expected unset key to report false")
	}
	kt.Set(1, "a")
	kt.Set(2, "b")
	kt.Set(1, "a2") // overwrite

	if v, ok := kt.Get(1); !ok || v != "a2" {
		t.Errorf("Get(1) = %v, %v, want a2, true", v, ok)
	}
	if v, ok := kt.Get(2); !ok || v != "b" {
		t.Errorf("Get(2) = %v, %v, want b, true", v, ok)
	}
}

func TestKeytableDestructorRunsOnTerminate(t *testing.T) {
	var destroyed []any
	key := NewKey(func(v any) { destroyed = append(destroyed, v) })

	th := CreateThread(func(ctx context.Context, args ...any) {
		_ = SelfSetSpecific(ctx, key, "payload")
	})

	sched, err := NewScheduler(nil, SchedBasic, NewConfig(), NewFIFOPool(AccessMPMC))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	stream, err := NewStream(nil, sched)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := sched.pools[0].Push(th); err != nil {
		t.Fatalf("Push: %v", err)
	}
	th.unit().setPool(sched.pools[0])

	sched.runOnce(context.Background(), stream)

	if th.State() != stateTerminated {
		t.Fatalf("expected Thread terminated, got %v", th.State())
	}
	if len(destroyed) != 1 || destroyed[0] != "payload" {
		t.Errorf("expected destructor to observe %q once, got %v", "payload", destroyed)
	}
}

func TestSelfGetSpecificOutsideUnit(t *testing.T) {
	if _, ok := SelfGetSpecific(context.Background(), 1); ok {
		t.Error("expected SelfGetSpecific to report false outside a running unit")
	}
	if err := SelfSetSpecific(context.Background(), 1, "x"); err == nil {
		t.Error("expected SelfSetSpecific to fail outside a running unit")
	}
}

func TestFreeKeyDropsDestructor(t *testing.T) {
	var destroyed int
	key := NewKey(func(v any) { destroyed++ })
	FreeKey(key)

	th := CreateThread(func(ctx context.Context, args ...any) {
		_ = SelfSetSpecific(ctx, key, "payload")
	})
	sched, err := NewScheduler(nil, SchedBasic, NewConfig(), NewFIFOPool(AccessMPMC))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	stream, err := NewStream(nil, sched)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := sched.pools[0].Push(th); err != nil {
		t.Fatalf("Push: %v", err)
	}
	th.unit().setPool(sched.pools[0])

	sched.runOnce(context.Background(), stream)

	if destroyed != 0 {
		t.Errorf("expected no destructor call after FreeKey, got %d", destroyed)
	}
}
