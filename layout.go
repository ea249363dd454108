package shmem

import (
	"math"
	"strings"
	"unsafe"
)

const (
	// ControlBlockSize is the size of the header at the start of the segment.
	// The slot array starts immediately after it.
	ControlBlockSize = 320

	// SemNameCap is the capacity of each semaphore name buffer, including the
	// terminating NUL.
	SemNameCap = 128

	// MaxBorrows is the number of borrows that may be outstanding on a queue
	// at once, across all processes.
	MaxBorrows = 3

	semBaseMaxLen  = 24
	maxSemNameLen  = 30
	mutexSemSuffix = "_mutex"
	itemsSemSuffix = "_items"
)

// controlBlock mirrors the shared header byte for byte. Every field is fixed
// width; offsets are listed so other implementations can match them.
type controlBlock struct {
	maxElements uint64             // 0x000
	elementSize uint64             // 0x008
	head        uint64             // 0x010: next write index
	tail        uint64             // 0x018: next read index
	count       uint64             // 0x020: occupied slots
	mutexName   [SemNameCap]byte   // 0x028
	itemsName   [SemNameCap]byte   // 0x0A8
	pins        [MaxBorrows]uint64 // 0x128: borrowed slot index+1, 0 when free
}

// Fails to compile if the struct drifts from ControlBlockSize.
var (
	_ [ControlBlockSize - unsafe.Sizeof(controlBlock{})]byte
	_ [unsafe.Sizeof(controlBlock{}) - ControlBlockSize]byte
)

// segmentSize returns header+data, or false if either product overflows or the
// result cannot be mapped into a Go slice.
func segmentSize(maxElements, elementSize uint64) (uint64, bool) {
	if elementSize != 0 && maxElements > math.MaxUint64/elementSize {
		return 0, false
	}
	data := maxElements * elementSize
	if data > math.MaxUint64-ControlBlockSize {
		return 0, false
	}
	total := data + ControlBlockSize
	if total > math.MaxInt {
		return 0, false
	}
	return total, true
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, " \x00") {
		return ErrInvalidName
	}
	return nil
}

// semNames derives the two semaphore names from a queue name: one leading '/'
// is stripped, the base is cut to 24 bytes and the fixed suffixes appended.
// Destroy relies on this being the only naming scheme. Queues whose names
// agree in the first 24 bytes share semaphores.
func semNames(name string) (mutex, items string, err error) {
	base := strings.TrimPrefix(name, "/")
	if len(base) > semBaseMaxLen {
		base = base[:semBaseMaxLen]
	}
	mutex = base + mutexSemSuffix
	items = base + itemsSemSuffix
	if len(mutex) > maxSemNameLen || len(items) > maxSemNameLen {
		return "", "", ErrNameTooLong
	}
	return mutex, items, nil
}

func (cb *controlBlock) setNames(mutex, items string) {
	cb.mutexName = [SemNameCap]byte{}
	cb.itemsName = [SemNameCap]byte{}
	copy(cb.mutexName[:SemNameCap-1], mutex)
	copy(cb.itemsName[:SemNameCap-1], items)
}

func (cb *controlBlock) names() (mutex, items string) {
	return cString(cb.mutexName[:]), cString(cb.itemsName[:])
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// pinSlot records index as borrowed. It reports false when every pin entry is
// in use.
func (cb *controlBlock) pinSlot(index uint64) bool {
	for i := range cb.pins {
		if cb.pins[i] == 0 {
			cb.pins[i] = index + 1
			return true
		}
	}
	return false
}

func (cb *controlBlock) unpinSlot(index uint64) bool {
	for i := range cb.pins {
		if cb.pins[i] == index+1 {
			cb.pins[i] = 0
			return true
		}
	}
	return false
}

func (cb *controlBlock) pinned(index uint64) bool {
	for _, p := range cb.pins {
		if p == index+1 {
			return true
		}
	}
	return false
}

func (cb *controlBlock) pinCount() int {
	n := 0
	for _, p := range cb.pins {
		if p != 0 {
			n++
		}
	}
	return n
}
