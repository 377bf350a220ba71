package worklet

import (
	"context"
	"testing"
)

func TestTaskRunsInline(t *testing.T) {
	ran := false
	task := CreateTask(func(ctx context.Context, args ...any) { ran = true })

	pool := NewFIFOPool(AccessMPMC)
	sched, err := NewScheduler(nil, SchedBasic, NewConfig(), pool)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	stream, err := NewStream(nil, sched)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := pool.Push(task); err != nil {
		t.Fatalf("Push: %v", err)
	}
	task.unit().setPool(pool)

	sched.runOnce(context.Background(), stream)

	if !ran {
		t.Error("expected Task body to run")
	}
	if task.State() != stateTerminated {
		t.Errorf("expected Terminated, got %v", task.State())
	}
}

func TestTaskCancelBeforeRun(t *testing.T) {
	invoked := false
	task := CreateTask(func(ctx context.Context, args ...any) { invoked = true })
	if err := task.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	pool := NewFIFOPool(AccessMPMC)
	sched, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool)
	stream, _ := NewStream(nil, sched)
	_ = pool.Push(task)
	task.unit().setPool(pool)

	sched.runOnce(context.Background(), stream)

	if invoked {
		t.Error("canceled task's body should never run")
	}
	if task.State() != stateTerminated {
		t.Errorf("expected Terminated, got %v", task.State())
	}
}

func TestTaskSelfExitReturnsSentinel(t *testing.T) {
	reachedEnd := false
	task := CreateTask(func(ctx context.Context, args ...any) {
		if err := SelfExit(ctx); !isSelfExit(err) {
			t.Errorf("expected SelfExit sentinel, got %v", err)
		}
		reachedEnd = true
	})

	pool := NewFIFOPool(AccessMPMC)
	sched, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool)
	stream, _ := NewStream(nil, sched)
	_ = pool.Push(task)
	task.unit().setPool(pool)

	sched.runOnce(context.Background(), stream)

	// SelfExit for a Task returns a sentinel error rather than unwinding the
	// goroutine (it has no machine context to unwind); the body decides
	// whether to act on it.
	if !reachedEnd {
		t.Error("expected the task body's own statements after SelfExit to still run")
	}
	if task.State() != stateTerminated {
		t.Errorf("expected Terminated, got %v", task.State())
	}
}

func TestTaskJoinBlocksUntilFinished(t *testing.T) {
	task := CreateTask(func(ctx context.Context, args ...any) {})
	pool := NewFIFOPool(AccessMPMC)
	sched, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool)
	stream, _ := NewStream(nil, sched)
	_ = pool.Push(task)
	task.unit().setPool(pool)

	done := make(chan error, 1)
	go func() { done <- task.Join(context.Background()) }()

	sched.runOnce(context.Background(), stream)

	if err := <-done; err != nil {
		t.Fatalf("Join: %v", err)
	}
}

func TestTaskFreeAfterTerminate(t *testing.T) {
	task := CreateTask(func(ctx context.Context, args ...any) {})
	pool := NewFIFOPool(AccessMPMC)
	sched, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool)
	stream, _ := NewStream(nil, sched)
	_ = pool.Push(task)
	task.unit().setPool(pool)

	sched.runOnce(context.Background(), stream)

	if err := task.Free(context.Background()); err != nil {
		t.Fatalf("Free: %v", err)
	}
}
