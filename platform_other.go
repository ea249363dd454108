//go:build !((linux || darwin) && cgo)

package shmem

func semCreate(string, uint32, uint32) (semHandle, error) { return 0, ErrUnsupported }
func semOpen(string) (semHandle, error)                   { return 0, ErrUnsupported }
func semWait(semHandle) error                              { return ErrUnsupported }
func semTryWait(semHandle) (bool, error)                   { return false, ErrUnsupported }
func semPost(semHandle) error                              { return ErrUnsupported }
func semClose(semHandle) error                             { return ErrUnsupported }
func semUnlink(string) error                               { return ErrUnsupported }

func shmCreate(string, uint32) (int, error) { return -1, ErrUnsupported }
func shmOpen(string) (int, error)           { return -1, ErrUnsupported }
func shmUnlink(string) error                { return ErrUnsupported }

func truncateFd(int, uint64) error       { return ErrUnsupported }
func fdSize(int) (int64, error)          { return 0, ErrUnsupported }
func mapFd(int, uint64) ([]byte, error)  { return nil, ErrUnsupported }
func unmap([]byte) error                 { return nil }
func closeFd(int) error                  { return nil }
func isExist(error) bool                 { return false }
func isNotExist(error) bool              { return false }
