package shmem

import (
	"runtime"
	"sync/atomic"
	"time"
)

// WaitStrategy implements an adaptive spin-then-sleep wait for consumers that
// poll with TryPop or Borrow instead of blocking in Pop.
type WaitStrategy struct {
	CurrentLimit int32
	MinSpin      int32
	MaxSpin      int32
	IncStep      int32
	DecStep      int32
}

// NewWaitStrategy creates a WaitStrategy with default values.
func NewWaitStrategy() *WaitStrategy {
	return &WaitStrategy{
		CurrentLimit: 200,
		MinSpin:      10,
		MaxSpin:      2000,
		IncStep:      20,
		DecStep:      10,
	}
}

// Wait spins on condition up to the current limit, then runs sleepAction once
// and checks again. A successful spin raises the limit, a failed one lowers it.
//
// Returns true if the condition was met.
func (w *WaitStrategy) Wait(condition func() bool, sleepAction func()) bool {
	ready := false
	limit := int(atomic.LoadInt32(&w.CurrentLimit))

	for i := 0; i < limit; i++ {
		if condition() {
			ready = true
			break
		}
		if i&0x3F == 0 {
			runtime.Gosched()
		}
	}

	if ready {
		if limit < int(w.MaxSpin) {
			atomic.StoreInt32(&w.CurrentLimit, int32(min(limit+int(w.IncStep), int(w.MaxSpin))))
		}
		return true
	}

	if limit > int(w.MinSpin) {
		atomic.StoreInt32(&w.CurrentLimit, int32(max(limit-int(w.DecStep), int(w.MinSpin))))
	}
	sleepAction()
	return condition()
}

// PollPop waits for a message with TryPop, sleeping for sleep between spin
// rounds. It reports false if no message arrived within one round.
func (w *WaitStrategy) PollPop(q *Queue, buf []byte, sleep time.Duration) (bool, error) {
	var err error
	ok := w.Wait(func() bool {
		var got bool
		got, err = q.TryPop(buf)
		return got || err != nil
	}, func() { time.Sleep(sleep) })
	if err != nil {
		return false, err
	}
	return ok, nil
}

// PollBorrow is PollPop for the zero-copy path.
func (w *WaitStrategy) PollBorrow(q *Queue, sleep time.Duration) (*Lease, bool) {
	var lease *Lease
	ok := w.Wait(func() bool {
		var got bool
		lease, got = q.Borrow()
		return got
	}, func() { time.Sleep(sleep) })
	return lease, ok
}
