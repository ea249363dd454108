package shmem

import (
	"runtime"
	"sync/atomic"
)

// Lease is a borrowed slot. Bytes views shared memory directly and must be
// treated as read-only; it is invalid after Release or after the owning
// Queue is closed.
//
// A Lease that becomes unreachable without Release is released by the
// garbage collector, but that is a leak from the writer's point of view for
// as long as it goes uncollected.
type Lease struct {
	q       *Queue
	index   uint64
	data    []byte
	state   *leaseState
	cleanup runtime.Cleanup
}

type leaseState struct {
	released atomic.Bool
}

type leakedLease struct {
	q     *Queue
	index uint64
	state *leaseState
}

func (q *Queue) newLease(index uint64) *Lease {
	st := &leaseState{}
	q.leaseMu.Lock()
	q.leases[index] = st
	q.leaseMu.Unlock()

	l := &Lease{q: q, index: index, data: q.slot(index), state: st}
	l.cleanup = runtime.AddCleanup(l, releaseLeaked, leakedLease{q: q, index: index, state: st})
	return l
}

func releaseLeaked(l leakedLease) {
	if !l.state.released.CompareAndSwap(false, true) {
		return
	}
	Warn("borrowed slot was never released", "name", l.q.name, "index", l.index)
	l.q.teardown.RLock()
	defer l.q.teardown.RUnlock()
	if l.q.closed.Load() {
		return
	}
	if err := l.q.commit(l.index, l.state); err != nil {
		Warn("release of leaked slot failed", "name", l.q.name, "index", l.index, "err", err)
	}
}

// Bytes returns the borrowed slot, or nil once released.
func (l *Lease) Bytes() []byte {
	if l.state.released.Load() {
		return nil
	}
	return l.data
}

// Index returns the slot index, as accepted by Queue.CommitPop.
func (l *Lease) Index() uint64 {
	return l.index
}

// Release commits the borrow. Only the first call does anything; later calls
// return ErrLeaseReleased.
func (l *Lease) Release() error {
	if !l.state.released.CompareAndSwap(false, true) {
		return ErrLeaseReleased
	}
	l.cleanup.Stop()
	l.q.teardown.RLock()
	defer l.q.teardown.RUnlock()
	if l.q.closed.Load() {
		return ErrNotInitialized
	}
	return l.q.commit(l.index, l.state)
}

// forgetLease drops the local record for index. With a nil owner the record
// is marked released, so a CommitPop by index and a later Lease.Release
// cannot both succeed.
func (q *Queue) forgetLease(index uint64, owner *leaseState) {
	q.leaseMu.Lock()
	if st, ok := q.leases[index]; ok && (owner == nil || st == owner) {
		st.released.Store(true)
		delete(q.leases, index)
	}
	q.leaseMu.Unlock()
}

// releaseLeases unpins every borrow this handle still holds. Called by Close
// with teardown held, so a release that already claimed its lease but has not
// committed yet will find the queue closed; its pin is dropped here.
func (q *Queue) releaseLeases() {
	q.leaseMu.Lock()
	pending := make([]uint64, 0, len(q.leases))
	for index, st := range q.leases {
		st.released.Store(true)
		pending = append(pending, index)
		delete(q.leases, index)
	}
	q.leaseMu.Unlock()

	if len(pending) == 0 {
		return
	}
	if err := q.lock(); err != nil {
		Warn("close: cannot release borrows", "name", q.name, "err", err)
		return
	}
	for _, index := range pending {
		q.cb.unpinSlot(index)
	}
	q.unlock()
	Info("close released outstanding borrows", "name", q.name, "count", len(pending))
}
