package worklet

import (
	"context"
	"testing"
)

func TestSelfOutsideRunningUnit(t *testing.T) {
	if _, ok := Self(context.Background()); ok {
		t.Error("expected Self to report false outside a running unit")
	}
	if err := SelfYield(context.Background()); err == nil {
		t.Error("expected SelfYield to fail outside a running unit")
	}
	if err := SelfSuspend(context.Background()); err == nil {
		t.Error("expected SelfSuspend to fail outside a running unit")
	}
}

func TestSelfReturnsRunningUnit(t *testing.T) {
	var seenSelf Schedulable
	var seenStream *Stream
	th := CreateThread(func(ctx context.Context, args ...any) {
		seenSelf, _ = Self(ctx)
		seenStream, _ = SelfGetStream(ctx)
	})

	pool := NewFIFOPool(AccessMPMC)
	sched, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool)
	stream, _ := NewStream(nil, sched)
	_ = pool.Push(th)
	th.unit().setPool(pool)
	sched.runOnce(context.Background(), stream)

	if seenSelf == nil || seenSelf.ID() != th.ID() {
		t.Error("expected Self(ctx) to report the running thread")
	}
	if seenStream != stream {
		t.Error("expected SelfGetStream(ctx) to report the hosting stream")
	}
}

func TestSelfSetArgGetArg(t *testing.T) {
	var readBack any
	th := CreateThread(func(ctx context.Context, args ...any) {
		if err := SelfSetArg(ctx, "stashed"); err != nil {
			t.Error(err)
			return
		}
		readBack, _ = SelfGetArg(ctx)
	})
	pool := NewFIFOPool(AccessMPMC)
	sched, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool)
	stream, _ := NewStream(nil, sched)
	_ = pool.Push(th)
	th.unit().setPool(pool)
	sched.runOnce(context.Background(), stream)

	if readBack != "stashed" {
		t.Errorf("SelfGetArg = %v, want stashed", readBack)
	}
}

func TestSelfYieldToTransfersDirectly(t *testing.T) {
	var order []string
	var b *Thread
	a := CreateThread(func(ctx context.Context, args ...any) {
		order = append(order, "a")
		if err := SelfYieldTo(ctx, b); err != nil {
			t.Error(err)
		}
	})
	b = CreateThread(func(ctx context.Context, args ...any) {
		order = append(order, "b")
	})

	pool := NewFIFOPool(AccessMPMC)
	sched, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool)
	stream, _ := NewStream(nil, sched)
	_ = pool.Push(a)
	a.unit().setPool(pool)
	_ = pool.Push(b)
	b.unit().setPool(pool)

	sched.runOnce(context.Background(), stream)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected yield_to to run b immediately after a, got %v", order)
	}
}

func TestSelfExitUnwindsThreadImmediately(t *testing.T) {
	reachedAfterExit := false
	th := CreateThread(func(ctx context.Context, args ...any) {
		_ = SelfExit(ctx)
		reachedAfterExit = true
	})
	pool := NewFIFOPool(AccessMPMC)
	sched, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool)
	stream, _ := NewStream(nil, sched)
	_ = pool.Push(th)
	th.unit().setPool(pool)
	sched.runOnce(context.Background(), stream)

	if reachedAfterExit {
		t.Error("expected statements after SelfExit to never run for a Thread")
	}
	if th.State() != stateTerminated {
		t.Errorf("expected Terminated, got %v", th.State())
	}
}

func TestSelfResumeYieldToWakesSuspendedTarget(t *testing.T) {
	var order []string
	pool := NewFIFOPool(AccessMPMC)
	sched, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool)
	stream, _ := NewStream(nil, sched)

	sleeper := CreateThread(func(ctx context.Context, args ...any) {
		order = append(order, "sleeper-before")
		_ = SelfSuspend(ctx)
		order = append(order, "sleeper-after")
	})
	var resumeErr error
	waker := CreateThread(func(ctx context.Context, args ...any) {
		order = append(order, "waker")
		resumeErr = SelfResumeYieldTo(ctx, sleeper)
		order = append(order, "waker-after")
	})

	_ = pool.Push(sleeper)
	sleeper.unit().setPool(pool)
	_ = pool.Push(waker)
	waker.unit().setPool(pool)

	sched.runOnce(context.Background(), stream) // sleeper-before, suspend
	sched.runOnce(context.Background(), stream) // waker, resume-yield-to, sleeper-after
	sched.runOnce(context.Background(), stream) // waker resumes, waker-after

	if resumeErr != nil {
		t.Fatalf("SelfResumeYieldTo: %v", resumeErr)
	}
	want := []string{"sleeper-before", "waker", "sleeper-after", "waker-after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if sleeper.State() != stateTerminated {
		t.Errorf("expected sleeper terminated, got %v", sleeper.State())
	}

	// Drain the requeued waker if the third pass raced its own requeue.
	sched.runOnce(context.Background(), stream)
	if waker.State() != stateTerminated {
		t.Errorf("expected waker terminated, got %v", waker.State())
	}
}

func TestSelfResumeYieldToOnReadyTargetFails(t *testing.T) {
	target := CreateThread(func(ctx context.Context, args ...any) {})
	var err error
	th := CreateThread(func(ctx context.Context, args ...any) {
		err = SelfResumeYieldTo(ctx, target)
	})
	stream := runOneThread(t, th)
	stream.mainScheduler().runOnce(context.Background(), stream)

	if err == nil {
		t.Error("expected resuming a Ready (never-suspended) target to fail")
	}
}
