package shmem

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds reported by the queue. Lifecycle failures wrap one of these in an
// *OpError, so callers should match with errors.Is.
var (
	// ErrInvalidName is returned when the queue name is empty or contains a
	// space or NUL byte.
	ErrInvalidName = errors.New("shmem: invalid queue name")
	// ErrInvalidSize is returned for a zero capacity or zero slot size.
	ErrInvalidSize = errors.New("shmem: capacity and element size must be non-zero")
	// ErrSizeOverflow is returned when capacity*size or header+data overflows.
	ErrSizeOverflow = errors.New("shmem: queue size overflows")
	// ErrAlreadyExists is returned by Create when the segment name is taken.
	ErrAlreadyExists = errors.New("shmem: queue already exists")
	// ErrNotFound is returned by Open when the segment or one of its
	// semaphores does not exist.
	ErrNotFound = errors.New("shmem: queue not found")
	// ErrMapFailed covers sizing, stat and mmap failures of the segment.
	ErrMapFailed = errors.New("shmem: failed to map shared memory")
	// ErrNameTooLong is returned when a derived semaphore name exceeds
	// maxSemNameLen.
	ErrNameTooLong = errors.New("shmem: semaphore name too long")
	// ErrSemaphoreInit is returned when a semaphore cannot be created or opened.
	ErrSemaphoreInit = errors.New("shmem: semaphore initialization failed")
	// ErrNotInitialized is returned for operations on a closed handle.
	ErrNotInitialized = errors.New("shmem: queue not initialized")

	// ErrElementSize is returned when a caller buffer does not fit a slot.
	ErrElementSize = errors.New("shmem: buffer does not match element size")
	// ErrSlotBorrowed is returned by Push when the next write slot is still
	// held by an outstanding borrow.
	ErrSlotBorrowed = errors.New("shmem: write slot is borrowed")
	// ErrNotBorrowed is returned by CommitPop for an index with no
	// outstanding borrow.
	ErrNotBorrowed = errors.New("shmem: slot is not borrowed")
	// ErrLeaseReleased is returned by a second Lease.Release.
	ErrLeaseReleased = errors.New("shmem: lease already released")
	// ErrUnsupported is returned on platforms without POSIX named semaphores
	// or when built without cgo.
	ErrUnsupported = errors.New("shmem: shared memory queues require cgo on linux or darwin")
)

// OpError describes a failed lifecycle step.
type OpError struct {
	Op   string // "create", "open", "destroy"
	Name string // queue name
	Kind error  // one of the Err* sentinels
	Err  error  // underlying cause, usually a syscall.Errno; may be nil
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Name, e.Kind, e.Err)
}

// Is reports whether target is the error kind.
func (e *OpError) Is(target error) bool {
	return target == e.Kind
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(op, name string, kind, err error) error {
	return errors.WithStack(&OpError{Op: op, Name: name, Kind: kind, Err: err})
}
