package worklet

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBarrierReleasesAllAtN(t *testing.T) {
	const n = 5
	b, err := NewBarrier(n)
	if err != nil {
		t.Fatalf("NewBarrier: %v", err)
	}

	var wg sync.WaitGroup
	released := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := b.Wait(context.Background()); err != nil {
				t.Error(err)
				return
			}
			released <- id
		}(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("barrier did not release all participants")
	}
	if len(released) != n {
		t.Errorf("released %d participants, want %d", len(released), n)
	}
}

func TestBarrierReusableAcrossGenerations(t *testing.T) {
	b, err := NewBarrier(2)
	if err != nil {
		t.Fatalf("NewBarrier: %v", err)
	}
	for gen := 0; gen < 3; gen++ {
		var wg sync.WaitGroup
		wg.Add(2)
		for i := 0; i < 2; i++ {
			go func() {
				defer wg.Done()
				if err := b.Wait(context.Background()); err != nil {
					t.Error(err)
				}
			}()
		}
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("generation %d did not release", gen)
		}
	}
}

func TestNewBarrierRejectsNonPositive(t *testing.T) {
	if _, err := NewBarrier(0); err == nil {
		t.Error("expected NewBarrier(0) to fail")
	}
	if _, err := NewBarrier(-1); err == nil {
		t.Error("expected NewBarrier(-1) to fail")
	}
}

func TestXBarrierReconfigureAppliesNextGeneration(t *testing.T) {
	xb, err := NewXBarrier(2)
	if err != nil {
		t.Fatalf("NewXBarrier: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			if err := xb.Wait(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("first generation did not release")
	}

	if err := xb.Reconfigure(3); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}

	wg2 := sync.WaitGroup{}
	wg2.Add(3)
	for i := 0; i < 3; i++ {
		go func() {
			defer wg2.Done()
			if err := xb.Wait(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	done2 := make(chan struct{})
	go func() { wg2.Wait(); close(done2) }()
	select {
	case <-done2:
	case <-time.After(time.Second):
		t.Fatal("reconfigured generation did not release with new participant count")
	}
}
