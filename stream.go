package worklet

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/zoobzio/capitan"
)

// StreamKind distinguishes the process's one Primary stream — created
// implicitly by Init, hosting "main" — from every Secondary stream a caller
// spins up explicitly (spec.md §3).
type StreamKind int

const (
	StreamPrimary StreamKind = iota
	StreamSecondary
)

func (k StreamKind) String() string {
	if k == StreamPrimary {
		return "primary"
	}
	return "secondary"
}

type streamState int32

const (
	streamCreated streamState = iota
	streamReady
	streamRunning
	streamTerminated
)

// Stream is an execution stream: one OS-thread-backed scheduling domain
// driving a stack of Schedulers (spec.md §3, §4.2). Secondary streams each
// run their driver loop on a dedicated goroutine pinned with
// runtime.LockOSThread, matching the "OS-thread-backed" requirement as
// closely as Go's scheduler allows without cgo.
type Stream struct {
	rank  int32
	kind  StreamKind
	state atomic.Int32

	mainSched atomic.Pointer[Scheduler]
	rootPool  *rootPool

	running   Schedulable // unit currently executing; nil when idle
	runningMu spinlock

	stopCh chan struct{}
	doneCh chan struct{}

	rt *Runtime
}

var (
	streamsMu   spinlock
	streams     []*Stream
	nextRank    atomic.Int32
)

// NewStream creates a secondary stream with sched as its initial main
// scheduler and registers it in the process-wide rank-sorted list. Its
// driver loop does not run until Start is called.
func NewStream(rt *Runtime, sched *Scheduler) (*Stream, error) {
	if sched == nil {
		return nil, newError("NewStream", KindInvArg, ErrInvArg)
	}
	s := &Stream{
		rank:     nextRank.Add(1),
		kind:     StreamSecondary,
		rootPool: newRootPool(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		rt:       rt,
	}
	s.state.Store(int32(streamCreated))
	s.mainSched.Store(sched)
	sched.hostStream = s
	sched.usage = schedUsageMain

	streamsMu.acquire()
	streams = append(streams, s)
	sort.Slice(streams, func(i, j int) bool { return streams[i].rank < streams[j].rank })
	streamsMu.release()

	return s, nil
}

// newPrimaryStream constructs the implicit Primary stream Init creates to
// host "main" (spec.md §3).
func newPrimaryStream(rt *Runtime, sched *Scheduler) *Stream {
	s := &Stream{
		rank:     0,
		kind:     StreamPrimary,
		rootPool: newRootPool(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		rt:       rt,
	}
	s.state.Store(int32(streamReady))
	s.mainSched.Store(sched)
	sched.hostStream = s
	sched.usage = schedUsageMain
	if sched.rt == nil {
		sched.rt = rt
	}

	streamsMu.acquire()
	streams = append(streams, s)
	sort.Slice(streams, func(i, j int) bool { return streams[i].rank < streams[j].rank })
	streamsMu.release()
	return s
}

// Rank returns the stream's process-wide rank (0 is always Primary).
func (s *Stream) Rank() int32 { return s.rank }

// Kind returns Primary or Secondary.
func (s *Stream) Kind() StreamKind { return s.kind }

func (s *Stream) State() streamState { return streamState(s.state.Load()) }

func (s *Stream) mainScheduler() *Scheduler { return s.mainSched.Load() }

// MainScheduler returns the stream's current main scheduler.
func (s *Stream) MainScheduler() *Scheduler { return s.mainScheduler() }

// SetMainScheduler installs sched as the stream's main scheduler. Legal only
// before Start or after the driver loop has terminated; swapping the
// scheduler of a running stream goes through Scheduler.Replace (spec.md
// §4.3's REPLACE protocol) instead.
func (s *Stream) SetMainScheduler(sched *Scheduler) error {
	const op = "SetMainScheduler"
	if sched == nil {
		return newError(op, KindInvArg, ErrInvArg)
	}
	switch s.State() {
	case streamCreated, streamTerminated:
	default:
		return newError(op, KindInvState, ErrInvState)
	}
	sched.hostStream = s
	sched.usage = schedUsageMain
	s.mainSched.Store(sched)
	return nil
}

// Start launches the stream's driver goroutine, which pins itself to its
// backing OS thread and runs the main scheduler's loop until the stream is
// freed (spec.md §4.2).
func (s *Stream) Start() error {
	if !s.state.CompareAndSwap(int32(streamCreated), int32(streamReady)) {
		if s.State() != streamReady {
			return newError("Start", KindInvState, ErrInvState)
		}
	}
	go s.driverLoop()
	return nil
}

func (s *Stream) driverLoop() {
	defer close(s.doneCh)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	s.state.Store(int32(streamRunning))
	capitan.Info(context.Background(), SignalStreamStarted, FieldRank.Field(int(s.rank)))

	sched := s.mainScheduler()
	for {
		select {
		case <-s.stopCh:
			_ = sched.free()
			s.state.Store(int32(streamTerminated))
			capitan.Info(context.Background(), SignalStreamTerminated, FieldRank.Field(int(s.rank)))
			return
		default:
		}
		sched.runOnce(context.Background(), s)
		if next := sched.takeReplacement(); next != nil {
			old := sched
			next.hostThread = old.hostThread
			next.hostStream = s
			next.usage = schedUsageMain
			s.mainSched.Store(next)
			sched = next
			close(old.replaceDone)
			if old.cfg.Automatic {
				_ = old.free()
			}
			capitan.Info(context.Background(), SignalSchedulerReplaced, FieldRank.Field(int(s.rank)), FieldSchedKind.Field(string(sched.kind)))
			continue
		}
		if sched.hasToStop() {
			_ = sched.free()
			s.state.Store(int32(streamTerminated))
			capitan.Info(context.Background(), SignalStreamTerminated, FieldRank.Field(int(s.rank)))
			return
		}
	}
}

// setRunning records the unit currently executing on this stream (nil when
// idle); currentlyRunning reads it back.
func (s *Stream) setRunning(u Schedulable) {
	s.runningMu.acquire()
	s.running = u
	s.runningMu.release()
}

func (s *Stream) currentlyRunning() Schedulable {
	s.runningMu.acquire()
	defer s.runningMu.release()
	return s.running
}

// Join blocks the caller until the stream's driver loop has exited
// (spec.md §4.2: "join" waits for a stream to finish running its main
// scheduler). Non-goals exclude joining the Primary stream from within the
// runtime's own process lifecycle (only Finalize may retire it).
func (s *Stream) Join(ctx context.Context) error {
	if s.kind == StreamPrimary {
		return newError("Join", KindInvArg, ErrInvArg)
	}
	capitan.Info(ctx, SignalStreamJoinBlocked, FieldRank.Field(int(s.rank)))
	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return newError("Join", KindTimedOut, ctx.Err())
	}
}

// Free requests the stream's main scheduler finish gracefully — spec.md
// §4.3's REQ_FINISH: the driver loop keeps dispatching queued work and only
// terminates once every one of the scheduler's pools reports empty and no
// blocked waiters (hasToStop) — then waits for the driver loop to exit.
// Freeing the Primary stream is a Non-goal; use Finalize.
func (s *Stream) Free(ctx context.Context) error {
	if s.kind == StreamPrimary {
		return newError("Free", KindInvArg, ErrInvArg)
	}
	sched := s.mainScheduler()
	sched.requestFinish()
	if err := s.Join(ctx); err != nil {
		return err
	}
	removeStream(s)
	return nil
}

// Exit requests the stream's main scheduler stop immediately (spec.md
// §4.3's REQ_EXIT), regardless of queued work, then waits for the driver
// loop to exit. Freeing the Primary stream is a Non-goal; use Finalize.
func (s *Stream) Exit(ctx context.Context) error {
	if s.kind == StreamPrimary {
		return newError("Exit", KindInvArg, ErrInvArg)
	}
	sched := s.mainScheduler()
	sched.requestExit()
	close(s.stopCh)
	if err := s.Join(ctx); err != nil {
		return err
	}
	removeStream(s)
	return nil
}

// Revive resets a Terminated stream back to Created so it can be Started
// again (spec.md §3's stream lifecycle). A non-nil sched replaces the
// stream's main scheduler for the new run; nil keeps the old one, with its
// request bits cleared.
func (s *Stream) Revive(sched *Scheduler) error {
	const op = "Revive"
	if s.State() != streamTerminated {
		return newError(op, KindInvState, ErrInvState)
	}
	if sched != nil {
		if err := s.SetMainScheduler(sched); err != nil {
			return err
		}
	} else {
		s.mainScheduler().clearRequests()
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.state.Store(int32(streamCreated))

	streamsMu.acquire()
	found := false
	for _, st := range streams {
		if st == s {
			found = true
			break
		}
	}
	if !found {
		streams = append(streams, s)
		sort.Slice(streams, func(i, j int) bool { return streams[i].rank < streams[j].rank })
	}
	streamsMu.release()
	return nil
}

// removeStream drops s from the process-wide rank-sorted list once its
// driver loop has exited for good.
func removeStream(s *Stream) {
	streamsMu.acquire()
	defer streamsMu.release()
	for i, st := range streams {
		if st == s {
			streams = append(streams[:i], streams[i+1:]...)
			return
		}
	}
}

// streamsSnapshot returns the current rank-sorted stream list, used by
// work-stealing pools to pick victims (spec.md §4.6).
func streamsSnapshot() []*Stream {
	streamsMu.acquire()
	defer streamsMu.release()
	out := make([]*Stream, len(streams))
	copy(out, streams)
	return out
}

// Streams returns a snapshot of every live stream in rank order (spec.md
// §6: "iterate ESs").
func Streams() []*Stream {
	return streamsSnapshot()
}
