package shmem

import (
	"errors"
	"math"
	"strings"
	"testing"
	"unsafe"
)

func TestControlBlockLayout(t *testing.T) {
	var cb controlBlock
	offsets := []struct {
		field string
		got   uintptr
		want  uintptr
	}{
		{"maxElements", unsafe.Offsetof(cb.maxElements), 0x000},
		{"elementSize", unsafe.Offsetof(cb.elementSize), 0x008},
		{"head", unsafe.Offsetof(cb.head), 0x010},
		{"tail", unsafe.Offsetof(cb.tail), 0x018},
		{"count", unsafe.Offsetof(cb.count), 0x020},
		{"mutexName", unsafe.Offsetof(cb.mutexName), 0x028},
		{"itemsName", unsafe.Offsetof(cb.itemsName), 0x0A8},
		{"pins", unsafe.Offsetof(cb.pins), 0x128},
	}
	for _, o := range offsets {
		if o.got != o.want {
			t.Errorf("offset of %s = %#x, want %#x", o.field, o.got, o.want)
		}
	}
	if size := unsafe.Sizeof(cb); size != ControlBlockSize {
		t.Fatalf("sizeof(controlBlock) = %d, want %d", size, ControlBlockSize)
	}
	if ControlBlockSize%64 != 0 {
		t.Fatalf("ControlBlockSize %d is not 64-byte aligned", ControlBlockSize)
	}
}

func TestSegmentSize(t *testing.T) {
	tests := []struct {
		name     string
		elements uint64
		size     uint64
		want     uint64
		ok       bool
	}{
		{"small", 3, 4, ControlBlockSize + 12, true},
		{"large slots", 10, 10 << 20, ControlBlockSize + 100<<20, true},
		{"product overflows", math.MaxUint64/2 + 1, 2, 0, false},
		{"header overflows", math.MaxUint64 - 10, 1, 0, false},
		{"exceeds int", math.MaxInt, 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := segmentSize(tt.elements, tt.size)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("segmentSize(%d, %d) = %d, %v; want %d, %v", tt.elements, tt.size, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"/q", "/my_queue_example_2", "plain"} {
		if err := validateName(name); err != nil {
			t.Errorf("validateName(%q) = %v, want nil", name, err)
		}
	}
	for _, name := range []string{"", "/my queue", "/nul\x00byte"} {
		if err := validateName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("validateName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestSemNames(t *testing.T) {
	tests := []struct {
		name      string
		wantMutex string
		wantItems string
	}{
		{"/my_queue_example_2", "my_queue_example_2_mutex", "my_queue_example_2_items"},
		{"noslash", "noslash_mutex", "noslash_items"},
		{"/" + strings.Repeat("x", 40), strings.Repeat("x", 24) + "_mutex", strings.Repeat("x", 24) + "_items"},
		{"//double", "/double_mutex", "/double_items"},
	}
	for _, tt := range tests {
		mutex, items, err := semNames(tt.name)
		if err != nil {
			t.Fatalf("semNames(%q) failed: %v", tt.name, err)
		}
		if mutex != tt.wantMutex || items != tt.wantItems {
			t.Errorf("semNames(%q) = %q, %q; want %q, %q", tt.name, mutex, items, tt.wantMutex, tt.wantItems)
		}
		if len(mutex) > maxSemNameLen || len(items) > maxSemNameLen {
			t.Errorf("semNames(%q) exceeds %d bytes", tt.name, maxSemNameLen)
		}
	}
}

func TestControlBlockNames(t *testing.T) {
	var cb controlBlock
	cb.mutexName[5] = 'z' // leftovers must not leak into the stored name
	cb.setNames("abc_mutex", "abc_items")

	mutex, items := cb.names()
	if mutex != "abc_mutex" || items != "abc_items" {
		t.Fatalf("names() = %q, %q", mutex, items)
	}
	if cb.mutexName[len("abc_mutex")] != 0 {
		t.Fatal("stored name is not NUL terminated")
	}

	long := strings.Repeat("n", SemNameCap+10)
	cb.setNames(long, long)
	mutex, _ = cb.names()
	if len(mutex) != SemNameCap-1 {
		t.Fatalf("oversized name stored as %d bytes, want %d", len(mutex), SemNameCap-1)
	}
}

func TestPins(t *testing.T) {
	var cb controlBlock

	if cb.pinned(0) {
		t.Fatal("empty control block reports slot 0 pinned")
	}
	for i := uint64(0); i < MaxBorrows; i++ {
		if !cb.pinSlot(i) {
			t.Fatalf("pinSlot(%d) failed with free entries", i)
		}
	}
	if cb.pinSlot(MaxBorrows) {
		t.Fatal("pinSlot succeeded with every entry in use")
	}
	if got := cb.pinCount(); got != MaxBorrows {
		t.Fatalf("pinCount = %d, want %d", got, MaxBorrows)
	}
	if !cb.pinned(1) || cb.pinned(MaxBorrows) {
		t.Fatal("pinned() disagrees with pinSlot")
	}
	if !cb.unpinSlot(1) {
		t.Fatal("unpinSlot(1) failed")
	}
	if cb.unpinSlot(1) {
		t.Fatal("second unpinSlot(1) succeeded")
	}
	if cb.pinned(1) {
		t.Fatal("slot 1 still pinned")
	}
}
