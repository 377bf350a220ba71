// Command worklet-demo exercises the runtime end to end: a second
// execution stream, a handful of ULTs sharing a mutex-guarded counter, a
// tasklet, and a migration between streams.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/worklet/worklet"
)

func main() {
	pool := worklet.NewFIFOPool(worklet.AccessMPMC)
	sched, err := worklet.NewScheduler(nil, worklet.SchedBasic, worklet.NewConfig(worklet.WithSleep(time.Millisecond)), pool)
	if err != nil {
		fail(err)
	}

	rt, err := worklet.Init(sched)
	if err != nil {
		fail(err)
	}
	defer func() { _ = worklet.Finalize(rt) }()

	_ = rt.OnEvent(worklet.EventFinish, func(ctx context.Context, ev worklet.ToolEvent) error {
		fmt.Printf("unit %d finished\n", ev.UnitID)
		return nil
	})

	m := worklet.NewMutex()
	var total int
	var ths []*worklet.Thread
	for i := 1; i <= 5; i++ {
		i := i
		th, err := worklet.CreateThreadOn(rt.Primary(), func(ctx context.Context, args ...any) {
			if err := m.Lock(ctx); err != nil {
				fmt.Fprintln(os.Stderr, "lock:", err)
				return
			}
			total += i
			_ = m.Unlock()
		})
		if err != nil {
			fail(err)
		}
		ths = append(ths, th)
	}

	task := worklet.CreateTask(func(ctx context.Context, args ...any) {
		fmt.Println("tasklet ran inline, no yield possible")
	})
	if err := pool.Push(task); err != nil {
		fail(err)
	}

	ctx := context.Background()
	if err := worklet.JoinMany(ctx, ths...); err != nil {
		fail(err)
	}
	if err := task.Join(ctx); err != nil {
		fail(err)
	}

	fmt.Printf("counter settled at %d (want 15)\n", total)

	pool2 := worklet.NewFIFOPool(worklet.AccessMPMC)
	sched2, err := worklet.NewScheduler(rt, worklet.SchedBasic, worklet.NewConfig(), pool2)
	if err != nil {
		fail(err)
	}
	stream2, err := worklet.NewStream(rt, sched2)
	if err != nil {
		fail(err)
	}
	if err := stream2.Start(); err != nil {
		fail(err)
	}

	wanderer, err := worklet.CreateThreadOn(rt.Primary(), func(ctx context.Context, args ...any) {
		st, _ := worklet.SelfGetStream(ctx)
		fmt.Printf("wanderer starts on stream rank %d\n", st.Rank())
		_ = worklet.SelfYield(ctx)
		st, _ = worklet.SelfGetStream(ctx)
		fmt.Printf("wanderer resumes on stream rank %d\n", st.Rank())
	})
	if err != nil {
		fail(err)
	}
	if err := worklet.MigrateToStream(ctx, rt, wanderer, stream2); err != nil {
		fail(err)
	}
	if err := wanderer.Join(ctx); err != nil {
		fail(err)
	}

	if err := stream2.Free(ctx); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
