package shmem

import (
	"github.com/pkg/errors"
)

func (q *Queue) slot(index uint64) []byte {
	off := index * q.elementSize
	return q.data[off : off+q.elementSize : off+q.elementSize]
}

func (q *Queue) lock() error {
	if err := q.mutex.wait(); err != nil {
		return errors.Wrapf(err, "shmem: lock %s", q.mutex.name)
	}
	return nil
}

func (q *Queue) unlock() {
	if err := q.mutex.post(); err != nil {
		Warn("unlock failed", "name", q.mutex.name, "err", err)
	}
}

// Push copies data into the next slot. It never waits for space: when the
// queue is full the oldest message is dropped and Push reports false.
//
// If the next slot is still held by an outstanding Borrow, nothing is written
// and ErrSlotBorrowed is returned.
func (q *Queue) Push(data []byte) (bool, error) {
	if q.closed.Load() {
		return false, ErrNotInitialized
	}
	if uint64(len(data)) != q.elementSize {
		return false, ErrElementSize
	}
	if err := q.lock(); err != nil {
		return false, err
	}

	cb := q.cb
	if cb.pinned(cb.head) {
		q.unlock()
		q.rec.Reject()
		return false, ErrSlotBorrowed
	}

	evicted := false
	if cb.count >= q.maxElements {
		cb.tail = (cb.tail + 1) % q.maxElements
		cb.count--
		evicted = true
		// Best effort: a reader that already claimed this item finds count
		// consistent under the mutex either way.
		_, _ = q.items.tryWait()
	}

	copy(q.slot(cb.head), data)
	cb.head = (cb.head + 1) % q.maxElements
	cb.count++

	postErr := q.items.post()
	q.unlock()

	q.rec.Push(evicted)
	if postErr != nil {
		return !evicted, errors.Wrapf(postErr, "shmem: signal %s", q.items.name)
	}
	return !evicted, nil
}

// Pop blocks until a message is available and copies it into buf, which must
// hold at least ElementSize bytes. There is no timeout.
func (q *Queue) Pop(buf []byte) error {
	if q.closed.Load() {
		return ErrNotInitialized
	}
	if uint64(len(buf)) < q.elementSize {
		return ErrElementSize
	}
	for {
		if err := q.items.wait(); err != nil {
			return errors.Wrapf(err, "shmem: wait on %s", q.items.name)
		}
		ok, err := q.take(buf)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

// TryPop copies the oldest message into buf if one is available. It never
// blocks; an empty queue and a failing semaphore both report false with a nil
// error. Errors are returned only for a closed handle or a short buffer.
func (q *Queue) TryPop(buf []byte) (bool, error) {
	if q.closed.Load() {
		return false, ErrNotInitialized
	}
	if uint64(len(buf)) < q.elementSize {
		return false, ErrElementSize
	}
	if ok, err := q.items.tryWait(); err != nil || !ok {
		return false, nil
	}
	ok, err := q.take(buf)
	if err != nil {
		return false, nil
	}
	return ok, nil
}

// PopCopy is Pop into a freshly allocated slot-sized buffer.
func (q *Queue) PopCopy() ([]byte, error) {
	if q.closed.Load() {
		return nil, ErrNotInitialized
	}
	buf := make([]byte, q.elementSize)
	if err := q.Pop(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// TryPopCopy is TryPop into a freshly allocated slot-sized buffer.
func (q *Queue) TryPopCopy() ([]byte, bool) {
	if q.closed.Load() {
		return nil, false
	}
	buf := make([]byte, q.elementSize)
	if ok, _ := q.TryPop(buf); !ok {
		return nil, false
	}
	return buf, true
}

// take finishes a read after a successful claim on the items semaphore. It
// reports false when the claim was stale: a push evicted the item between the
// claim and the lock, leaving count at zero.
func (q *Queue) take(buf []byte) (bool, error) {
	if err := q.lock(); err != nil {
		_ = q.items.post()
		return false, err
	}

	cb := q.cb
	if cb.count == 0 {
		q.unlock()
		return false, nil
	}
	copy(buf, q.slot(cb.tail))
	cb.tail = (cb.tail + 1) % q.maxElements
	cb.count--
	q.unlock()

	q.rec.Pop()
	return true, nil
}

// Borrow claims the oldest message without copying it. The returned Lease
// views the slot in shared memory and must be released exactly once; until
// then the slot is not overwritten (Push returns ErrSlotBorrowed instead).
//
// Borrow never blocks. It reports false on an empty queue, on a closed
// handle, when MaxBorrows borrows are already outstanding, or when a
// semaphore call fails.
func (q *Queue) Borrow() (*Lease, bool) {
	if q.closed.Load() {
		return nil, false
	}
	if ok, err := q.items.tryWait(); err != nil || !ok {
		return nil, false
	}
	if err := q.lock(); err != nil {
		_ = q.items.post()
		return nil, false
	}

	cb := q.cb
	if cb.count == 0 {
		q.unlock()
		return nil, false
	}
	index := cb.tail
	if !cb.pinSlot(index) {
		q.unlock()
		_ = q.items.post()
		return nil, false
	}
	cb.tail = (cb.tail + 1) % q.maxElements
	cb.count--
	q.unlock()

	q.rec.Borrow()
	return q.newLease(index), true
}

// CommitPop releases the slot returned by a Borrow. The pin is shared state,
// so any handle on the queue may release it. An index without an outstanding
// borrow yields ErrNotBorrowed.
func (q *Queue) CommitPop(index uint64) error {
	if q.closed.Load() {
		return ErrNotInitialized
	}
	return q.commit(index, nil)
}

// commit unpins index. A non-nil st identifies the Lease doing the release,
// so a newer lease on the same index is left alone.
func (q *Queue) commit(index uint64, st *leaseState) error {
	if index >= q.maxElements {
		return ErrNotBorrowed
	}
	if err := q.lock(); err != nil {
		return err
	}
	ok := q.cb.unpinSlot(index)
	if ok {
		q.forgetLease(index, st)
	}
	q.unlock()

	if !ok {
		return ErrNotBorrowed
	}
	q.rec.Commit()
	return nil
}

// ClearBorrows drops every outstanding borrow on the queue, including ones
// held by other processes, and returns how many were dropped. It is meant
// for recovery after a borrower died without releasing its slot.
func (q *Queue) ClearBorrows() (int, error) {
	if q.closed.Load() {
		return 0, ErrNotInitialized
	}
	if err := q.lock(); err != nil {
		return 0, err
	}
	n := q.cb.pinCount()
	q.cb.pins = [MaxBorrows]uint64{}
	q.unlock()

	q.leaseMu.Lock()
	for index, st := range q.leases {
		st.released.Store(true)
		delete(q.leases, index)
	}
	q.leaseMu.Unlock()

	if n > 0 {
		Info("borrows cleared", "name", q.name, "count", n)
	}
	return n, nil
}

// Len returns the number of unread messages.
func (q *Queue) Len() (uint64, error) {
	if q.closed.Load() {
		return 0, ErrNotInitialized
	}
	if err := q.lock(); err != nil {
		return 0, err
	}
	n := q.cb.count
	q.unlock()
	return n, nil
}
