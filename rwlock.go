package worklet

import "context"

// RWMutex is a reader-writer lock over the shared wait-list: any number of
// readers hold it concurrently, a writer holds it exclusively, and a
// pending writer blocks new readers from joining (writer-preference),
// matching original_source's rwlock semantics (spec.md §4.7). All state
// lives under one guard spinlock, held across every condition check and its
// wait-list enqueue, and across every state change and its signal — the
// guarding-lock discipline spec.md §4.7 requires, closing the window where
// a release's wake could land between a contender's check and its park.
type RWMutex struct {
	guard          spinlock
	readers        int
	waitingWriters int
	writer         bool
	readerWL       *waitList
	writerWL       *waitList
}

func NewRWMutex() *RWMutex {
	return &RWMutex{readerWL: newWaitList(), writerWL: newWaitList()}
}

func (rw *RWMutex) RLock(ctx context.Context) error {
	rw.guard.acquire()
	for rw.writer || rw.waitingWriters > 0 {
		if err := rw.readerWL.waitAndUnlock(ctx, rw.guard.release); err != nil {
			return err
		}
		rw.guard.acquire()
	}
	rw.readers++
	rw.guard.release()
	return nil
}

func (rw *RWMutex) RUnlock() error {
	rw.guard.acquire()
	defer rw.guard.release()
	if rw.readers == 0 {
		return newError("RUnlock", KindInvState, ErrInvState)
	}
	rw.readers--
	if rw.readers == 0 {
		rw.writerWL.signal()
	}
	return nil
}

func (rw *RWMutex) Lock(ctx context.Context) error {
	rw.guard.acquire()
	for {
		if rw.readers == 0 && !rw.writer {
			rw.writer = true
			rw.guard.release()
			return nil
		}
		rw.waitingWriters++
		err := rw.writerWL.waitAndUnlock(ctx, rw.guard.release)
		rw.guard.acquire()
		rw.waitingWriters--
		if err != nil {
			if rw.waitingWriters == 0 && !rw.writer {
				// The last pending writer gave up; parked readers were
				// only held back by it, so let them retry.
				rw.readerWL.broadcast()
			}
			rw.guard.release()
			return err
		}
	}
}

func (rw *RWMutex) Unlock() error {
	rw.guard.acquire()
	defer rw.guard.release()
	if !rw.writer {
		return newError("Unlock", KindInvState, ErrInvState)
	}
	rw.writer = false
	if rw.waitingWriters > 0 {
		rw.writerWL.signal()
	} else {
		rw.readerWL.broadcast()
	}
	return nil
}
