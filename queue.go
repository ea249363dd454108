// Package shmem implements a fixed-slot circular queue in POSIX shared memory,
// synchronized across processes by two named semaphores.
//
// One process creates the queue with Create; others attach with Open. Every
// handle only owns its local attachment: Close unmaps it and detaches the
// semaphores, while Destroy removes the shared objects for everybody.
//
// The segment layout is fixed (see ControlBlockSize and the field offsets in
// layout.go) so that processes built separately, in any language, agree on
// every byte.
package shmem

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/smqueue/shmem/internal/telemetry"
)

// Stats holds the traffic counters of one handle.
type Stats = telemetry.Snapshot

// Queue is a process-local handle to a shared memory queue.
//
// A Queue may be used from several goroutines. Close must not be called while
// other calls on the same handle are in flight.
type Queue struct {
	name        string
	mem         []byte
	cb          *controlBlock
	data        []byte
	maxElements uint64
	elementSize uint64

	mutex *semaphore
	items *semaphore

	rec    *telemetry.Recorder
	closed atomic.Bool

	// teardown is held shared by lease releases that run outside the
	// caller's control and exclusively by Close while it unmaps.
	teardown sync.RWMutex

	leaseMu sync.Mutex
	leases  map[uint64]*leaseState
}

// newSemaphore is replaced in tests to exercise the unwind path.
var newSemaphore = createSemaphore

// Create creates the named queue with maxElements slots of elementSize bytes.
// It fails with ErrAlreadyExists if a segment of that name exists. Any OS
// object acquired before a failure is removed again before Create returns.
func Create(name string, maxElements, elementSize uint64, opts ...Option) (q *Queue, err error) {
	const op = "create"

	if err := validateName(name); err != nil {
		return nil, opError(op, name, err, nil)
	}
	if maxElements == 0 || elementSize == 0 {
		return nil, opError(op, name, ErrInvalidSize, nil)
	}
	total, ok := segmentSize(maxElements, elementSize)
	if !ok {
		return nil, opError(op, name, ErrSizeOverflow, nil)
	}
	mutexName, itemsName, err := semNames(name)
	if err != nil {
		return nil, opError(op, name, err, nil)
	}
	o := buildOptions(opts)

	fd, err := shmCreate(name, uint32(o.segmentPerm))
	if err != nil {
		if isExist(err) {
			return nil, opError(op, name, ErrAlreadyExists, err)
		}
		return nil, opError(op, name, ErrMapFailed, err)
	}

	var unwind []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(unwind) - 1; i >= 0; i-- {
			unwind[i]()
		}
		Info("create unwound", "name", name, "err", err)
	}()
	unwind = append(unwind,
		func() { _ = shmUnlink(name) },
		func() { _ = closeFd(fd) },
	)

	if err = truncateFd(fd, total); err != nil {
		return nil, opError(op, name, ErrMapFailed, err)
	}
	mem, err := mapFd(fd, total)
	if err != nil {
		return nil, opError(op, name, ErrMapFailed, err)
	}
	unwind = append(unwind, func() { _ = unmap(mem) })

	cb := (*controlBlock)(unsafe.Pointer(&mem[0]))
	*cb = controlBlock{}
	cb.maxElements = maxElements
	cb.elementSize = elementSize
	cb.setNames(mutexName, itemsName)

	// Semaphores left behind by a crashed owner would carry stale counts.
	_ = semUnlink(mutexName)
	_ = semUnlink(itemsName)

	mutex, err := newSemaphore(mutexName, uint32(o.semPerm), 1)
	if err != nil {
		return nil, opError(op, name, ErrSemaphoreInit, err)
	}
	unwind = append(unwind, func() {
		_ = mutex.close()
		_ = semUnlink(mutexName)
	})

	items, err := newSemaphore(itemsName, uint32(o.semPerm), 0)
	if err != nil {
		return nil, opError(op, name, ErrSemaphoreInit, err)
	}
	unwind = append(unwind, func() {
		_ = items.close()
		_ = semUnlink(itemsName)
	})

	// The mapping keeps the object alive; the descriptor is no longer needed.
	_ = closeFd(fd)

	Debug("queue created", "name", name, "max_elements", maxElements, "element_size", elementSize, "bytes", total)
	return newQueue(name, mem, mutex, items, o), nil
}

// Open attaches to an existing queue. The semaphores are located through the
// names stored in the segment, not derived from name.
func Open(name string, opts ...Option) (*Queue, error) {
	const op = "open"

	if err := validateName(name); err != nil {
		return nil, opError(op, name, err, nil)
	}
	o := buildOptions(opts)

	fd, err := shmOpen(name)
	if err != nil {
		if isNotExist(err) {
			return nil, opError(op, name, ErrNotFound, err)
		}
		return nil, opError(op, name, ErrMapFailed, err)
	}
	defer closeFd(fd)

	size, err := fdSize(fd)
	if err != nil {
		return nil, opError(op, name, ErrMapFailed, err)
	}
	if size < ControlBlockSize {
		return nil, opError(op, name, ErrMapFailed, errors.Errorf("segment is %d bytes, header needs %d", size, ControlBlockSize))
	}
	mem, err := mapFd(fd, uint64(size))
	if err != nil {
		return nil, opError(op, name, ErrMapFailed, err)
	}

	cb := (*controlBlock)(unsafe.Pointer(&mem[0]))
	want, ok := segmentSize(cb.maxElements, cb.elementSize)
	if !ok || cb.maxElements == 0 || cb.elementSize == 0 || want > uint64(size) {
		_ = unmap(mem)
		return nil, opError(op, name, ErrMapFailed, errors.Errorf("segment is %d bytes, header describes %d x %d", size, cb.maxElements, cb.elementSize))
	}

	mutexName, itemsName := cb.names()
	mutex, err := openSemaphore(mutexName)
	if err != nil {
		_ = unmap(mem)
		return nil, opError(op, name, semOpenKind(err), err)
	}
	items, err := openSemaphore(itemsName)
	if err != nil {
		_ = mutex.close()
		_ = unmap(mem)
		return nil, opError(op, name, semOpenKind(err), err)
	}

	Debug("queue opened", "name", name, "max_elements", cb.maxElements, "element_size", cb.elementSize, "bytes", size)
	return newQueue(name, mem, mutex, items, o), nil
}

func semOpenKind(err error) error {
	if isNotExist(err) {
		return ErrNotFound
	}
	return ErrSemaphoreInit
}

func newQueue(name string, mem []byte, mutex, items *semaphore, o options) *Queue {
	cb := (*controlBlock)(unsafe.Pointer(&mem[0]))
	dataLen := cb.maxElements * cb.elementSize
	return &Queue{
		name:        name,
		mem:         mem,
		cb:          cb,
		data:        mem[ControlBlockSize : ControlBlockSize+dataLen : ControlBlockSize+dataLen],
		maxElements: cb.maxElements,
		elementSize: cb.elementSize,
		mutex:       mutex,
		items:       items,
		rec:         telemetry.NewRecorder(o.meterProvider, name),
		leases:      make(map[uint64]*leaseState),
	}
}

// Destroy removes the named segment and its semaphores from the system. It
// succeeds without doing anything if the segment does not exist.
//
// The semaphore names are derived from name with the same scheme Create uses;
// the segment is never mapped, so Destroy works even on a segment that can no
// longer be read.
func Destroy(name string) error {
	const op = "destroy"

	if err := validateName(name); err != nil {
		return opError(op, name, err, nil)
	}

	fd, err := shmOpen(name)
	if err != nil {
		if isNotExist(err) {
			Debug("destroy: queue does not exist", "name", name)
			return nil
		}
		return opError(op, name, ErrMapFailed, err)
	}
	_ = closeFd(fd)

	if err := shmUnlink(name); err != nil && !isNotExist(err) {
		return opError(op, name, ErrMapFailed, err)
	}

	mutexName, itemsName, err := semNames(name)
	if err != nil {
		return opError(op, name, err, nil)
	}
	if err := semUnlink(mutexName); err != nil {
		Debug("destroy: unlink mutex semaphore", "name", mutexName, "err", err)
	}
	if err := semUnlink(itemsName); err != nil {
		Debug("destroy: unlink items semaphore", "name", itemsName, "err", err)
	}

	Debug("queue destroyed", "name", name)
	return nil
}

// Close releases the handle's outstanding borrows, detaches the semaphores and
// unmaps the segment. It never removes the shared objects. Calling Close more
// than once is a no-op.
func (q *Queue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}

	q.teardown.Lock()
	defer q.teardown.Unlock()

	q.releaseLeases()

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	keep(q.mutex.close())
	keep(q.items.close())
	keep(unmap(q.mem))

	q.cb = nil
	q.data = nil
	q.mem = nil

	Debug("queue closed", "name", q.name)
	if first != nil {
		return errors.Wrapf(first, "shmem: close %s", q.name)
	}
	return nil
}

// MaxElements returns the queue capacity, or 0 on a closed handle.
func (q *Queue) MaxElements() uint64 {
	if q.closed.Load() {
		return 0
	}
	return q.maxElements
}

// ElementSize returns the slot size in bytes, or 0 on a closed handle.
func (q *Queue) ElementSize() uint64 {
	if q.closed.Load() {
		return 0
	}
	return q.elementSize
}

// Name returns the name the handle was created or opened with.
func (q *Queue) Name() string {
	return q.name
}

// Stats returns the traffic counters of this handle.
func (q *Queue) Stats() Stats {
	return q.rec.Snapshot()
}
