package memory

import (
	"errors"
	"testing"

	"github.com/chazu/cilemu/pkg/bitvec"
	"github.com/chazu/cilemu/pkg/trilean"
)

func newTestMemory(t *testing.T) *VirtualMemory {
	t.Helper()
	vm := NewVirtualMemory(0xFFFF_FFFF)
	if err := vm.Map(0x1000, NewBasicMemory(0x100, true)); err != nil {
		t.Fatalf("Map(0x1000): %v", err)
	}
	if err := vm.Map(0x1100, NewBasicMemory(0x100, false)); err != nil {
		t.Fatalf("Map(0x1100): %v", err)
	}
	return vm
}

func TestVirtualMemoryRoundTrip(t *testing.T) {
	vm := newTestMemory(t)

	partial := bitvec.FromUint64(0xDEADBEEF, 4)
	partial.SetBit(5, trilean.Unknown)
	partial.SetBit(30, trilean.Unknown)

	widths := []int{1, 2, 4, 8, 16}
	addresses := []uint64{0x1000, 0x1001, 0x10F0, 0x1100, 0x11F0}

	for _, addr := range addresses {
		for _, w := range widths {
			src := bitvec.New(w, true)
			src.WriteAt(0, bitvec.FromUint64(0xA5, 1))
			if w >= 4 {
				src.WriteAt(0, partial)
			}

			if err := vm.Write(addr, src); err != nil {
				t.Errorf("Write(%#x, w=%d): %v", addr, w, err)
				continue
			}
			dst := bitvec.New(w, false)
			if err := vm.Read(addr, dst); err != nil {
				t.Errorf("Read(%#x, w=%d): %v", addr, w, err)
				continue
			}
			if !dst.Identical(src) {
				t.Errorf("round trip at %#x w=%d: got %v, want %v", addr, w, dst, src)
			}
		}
	}
}

func TestVirtualMemoryUnmappedAccess(t *testing.T) {
	vm := newTestMemory(t)
	err := vm.Read(0x2000, bitvec.New(4, false))
	if !errors.Is(err, ErrAccessViolation) {
		t.Fatalf("Read(unmapped) error = %v, want access violation", err)
	}
	var av *AccessViolationError
	if !errors.As(err, &av) || av.Address != 0x2000 || av.Op != "read" {
		t.Errorf("AccessViolationError = %+v", av)
	}

	if err := vm.Write(0xFFFF_FFFF_0, bitvec.New(1, true)); !errors.Is(err, ErrAccessViolation) {
		t.Errorf("Write(beyond max) error = %v, want access violation", err)
	}
}

func TestVirtualMemoryCrossBoundaryAccess(t *testing.T) {
	vm := newTestMemory(t)
	// 0x10FE..0x1102 spans both regions.
	if err := vm.Write(0x10FE, bitvec.New(4, true)); !errors.Is(err, ErrAccessViolation) {
		t.Errorf("cross-region write error = %v, want access violation", err)
	}
	if err := vm.Read(0x11FE, bitvec.New(4, false)); !errors.Is(err, ErrAccessViolation) {
		t.Errorf("read past region end error = %v, want access violation", err)
	}
}

func TestVirtualMemoryOverlap(t *testing.T) {
	vm := newTestMemory(t)
	if err := vm.Map(0x10F0, NewBasicMemory(0x20, true)); !errors.Is(err, ErrOverlap) {
		t.Errorf("overlapping Map error = %v, want ErrOverlap", err)
	}
	if err := vm.Map(0x1200, NewBasicMemory(0x20, true)); err != nil {
		t.Errorf("adjacent Map: %v", err)
	}
	if got := len(vm.Mappings()); got != 3 {
		t.Errorf("len(Mappings()) = %d, want 3", got)
	}
	if err := vm.Unmap(0x1200); err != nil {
		t.Errorf("Unmap: %v", err)
	}
	if vm.IsValidAddress(0x1200) {
		t.Error("0x1200 should be unmapped")
	}
}

func TestVirtualMemoryRejectsMappingBeyondMax(t *testing.T) {
	vm := NewVirtualMemory(0xFFFF)
	if err := vm.Map(0xFF00, NewBasicMemory(0x200, true)); err == nil {
		t.Error("Map beyond max address should fail")
	}
}

func TestVirtualMemoryRejectedMapKeepsRegion(t *testing.T) {
	vm := NewVirtualMemory(0xFFFF)
	region := NewBasicMemory(0x100, true)
	if err := vm.Map(0x1000, region); err != nil {
		t.Fatalf("Map(0x1000): %v", err)
	}

	if err := vm.Map(0x2000, region); err == nil {
		t.Error("mapping the same region twice should fail")
	}
	if err := vm.Map(0xFF80, NewBasicMemory(0x100, true)); err == nil {
		t.Error("Map beyond max address should fail")
	}
	other := NewBasicMemory(0x20, true)
	if err := vm.Map(0x10F0, other); !errors.Is(err, ErrOverlap) {
		t.Errorf("overlapping Map error = %v, want ErrOverlap", err)
	}

	if got, want := region.AddressRange(), NewAddressRange(0x1000, 0x100); got != want {
		t.Errorf("region range = %v, want %v", got, want)
	}
	if got := other.AddressRange().Start; got != 0 {
		t.Errorf("rejected region was rebased to %#x", got)
	}
	if err := vm.Read(0x1000, bitvec.New(4, false)); err != nil {
		t.Errorf("Read(0x1000) after rejected Map: %v", err)
	}
	if got := len(vm.Mappings()); got != 1 {
		t.Errorf("len(Mappings()) = %d, want 1", got)
	}
}

func TestVirtualMemoryWriteBytes(t *testing.T) {
	vm := newTestMemory(t)
	if err := vm.WriteBytes(0x1100, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	dst := bitvec.New(4, false)
	if err := vm.Read(0x1100, dst); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !dst.IsFullyKnown() || dst.Uint32() != 0x04030201 {
		t.Errorf("Read after WriteBytes = %v", dst)
	}
}

func TestFindSpace(t *testing.T) {
	vm := newTestMemory(t)
	space, ok := vm.FindSpace(0x1150)
	if !ok {
		t.Fatal("FindSpace(0x1150) not found")
	}
	if got := space.AddressRange(); got.Start != 0x1100 {
		t.Errorf("FindSpace(0x1150).Start = %#x, want 0x1100", got.Start)
	}
	if _, ok := vm.FindSpace(0x0FFF); ok {
		t.Error("FindSpace(0x0fff) should fail")
	}
}
