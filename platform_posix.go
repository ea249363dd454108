//go:build (linux || darwin) && cgo

package shmem

/*
#cgo linux LDFLAGS: -lrt -pthread
#include <fcntl.h>
#include <semaphore.h>
#include <stdlib.h>
#include <sys/mman.h>
#include <sys/stat.h>

// sem_open and shm_open are variadic, which cgo cannot call directly.

static int smq_shm_create(const char* name, unsigned int mode) {
	return shm_open(name, O_CREAT | O_EXCL | O_RDWR, (mode_t)mode);
}

static int smq_shm_open(const char* name) {
	return shm_open(name, O_RDWR, 0);
}

static sem_t* smq_sem_create(const char* name, unsigned int mode, unsigned int value) {
	sem_t* s = sem_open(name, O_CREAT, (mode_t)mode, value);
	return s == SEM_FAILED ? NULL : s;
}

static sem_t* smq_sem_open(const char* name) {
	sem_t* s = sem_open(name, 0);
	return s == SEM_FAILED ? NULL : s;
}
*/
import "C"

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func sem(h semHandle) *C.sem_t {
	return (*C.sem_t)(unsafe.Pointer(h))
}

func semCreate(name string, perm uint32, value uint32) (semHandle, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	s, err := C.smq_sem_create(cName, C.uint(perm), C.uint(value))
	if s == nil {
		return 0, errnoOr(err, unix.EINVAL)
	}
	return semHandle(unsafe.Pointer(s)), nil
}

func semOpen(name string) (semHandle, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	s, err := C.smq_sem_open(cName)
	if s == nil {
		return 0, errnoOr(err, unix.ENOENT)
	}
	return semHandle(unsafe.Pointer(s)), nil
}

func semWait(h semHandle) error {
	for {
		rc, err := C.sem_wait(sem(h))
		if rc == 0 {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		return errnoOr(err, unix.EINVAL)
	}
}

func semTryWait(h semHandle) (bool, error) {
	for {
		rc, err := C.sem_trywait(sem(h))
		if rc == 0 {
			return true, nil
		}
		switch err {
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return false, nil
		}
		return false, errnoOr(err, unix.EINVAL)
	}
}

func semPost(h semHandle) error {
	if rc, err := C.sem_post(sem(h)); rc != 0 {
		return errnoOr(err, unix.EINVAL)
	}
	return nil
}

func semClose(h semHandle) error {
	if rc, err := C.sem_close(sem(h)); rc != 0 {
		return errnoOr(err, unix.EINVAL)
	}
	return nil
}

func semUnlink(name string) error {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	if rc, err := C.sem_unlink(cName); rc != 0 {
		return errnoOr(err, unix.ENOENT)
	}
	return nil
}

func shmCreate(name string, perm uint32) (int, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	fd, err := C.smq_shm_create(cName, C.uint(perm))
	if fd < 0 {
		return -1, errnoOr(err, unix.EINVAL)
	}
	return int(fd), nil
}

func shmOpen(name string) (int, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	fd, err := C.smq_shm_open(cName)
	if fd < 0 {
		return -1, errnoOr(err, unix.ENOENT)
	}
	return int(fd), nil
}

func shmUnlink(name string) error {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	if rc, err := C.shm_unlink(cName); rc != 0 {
		return errnoOr(err, unix.ENOENT)
	}
	return nil
}

func truncateFd(fd int, size uint64) error {
	return unix.Ftruncate(fd, int64(size))
}

func fdSize(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}

func mapFd(fd int, size uint64) ([]byte, error) {
	return unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func unmap(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return unix.Munmap(mem)
}

func closeFd(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

// errnoOr keeps the errno cgo captured, or falls back when the call failed
// without setting one.
func errnoOr(err error, fallback unix.Errno) error {
	if err != nil {
		return err
	}
	return fallback
}

func isExist(err error) bool    { return err == unix.EEXIST }
func isNotExist(err error) bool { return err == unix.ENOENT }
