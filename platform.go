package shmem

// semHandle is a process-local descriptor for a named semaphore (a sem_t* on
// POSIX systems).
type semHandle uintptr

// semaphore is a local attachment to a named semaphore. Closing it never
// removes the semaphore from the system namespace.
type semaphore struct {
	name string
	h    semHandle
}

// createSemaphore creates the named semaphore with the given initial value.
// A semaphore left behind under the same name is reused, so callers unlink
// first.
func createSemaphore(name string, perm uint32, value uint32) (*semaphore, error) {
	h, err := semCreate(name, perm, value)
	if err != nil {
		return nil, err
	}
	return &semaphore{name: name, h: h}, nil
}

// openSemaphore attaches to an existing named semaphore.
func openSemaphore(name string) (*semaphore, error) {
	h, err := semOpen(name)
	if err != nil {
		return nil, err
	}
	return &semaphore{name: name, h: h}, nil
}

// wait decrements the semaphore, blocking while it is zero. Interrupted waits
// are retried.
func (s *semaphore) wait() error {
	return semWait(s.h)
}

// tryWait decrements the semaphore if it is positive. It reports false with a
// nil error when the value is zero.
func (s *semaphore) tryWait() (bool, error) {
	return semTryWait(s.h)
}

func (s *semaphore) post() error {
	return semPost(s.h)
}

func (s *semaphore) close() error {
	if s == nil || s.h == 0 {
		return nil
	}
	err := semClose(s.h)
	s.h = 0
	return err
}
