package vm

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"github.com/chazu/cilemu/memory"
	"github.com/chazu/cilemu/metadata"
)

// ---------------------------------------------------------------------------
// Heap: bump allocator for managed objects
// ---------------------------------------------------------------------------

// HeapObject records one allocation.
type HeapObject struct {
	Address uint64
	Size    int
	Type    *metadata.TypeSig // nil for flat allocations
}

// Heap is a bump allocator over one mapped region. Nothing is ever freed.
//
// Object layout is [type handle][instance fields]. Arrays carry a native
// int length after the header; strings carry an int32 length followed by
// UTF-16 code units.
type Heap struct {
	*memory.BasicMemory
	factory *ValueFactory
	handles *TypeHandleMemory
	used    int
	objects []HeapObject
}

// NewHeap creates a heap of size bytes. Unallocated memory is unknown.
func NewHeap(size int, factory *ValueFactory, handles *TypeHandleMemory) *Heap {
	return &Heap{
		BasicMemory: memory.NewBasicMemory(size, false),
		factory:     factory,
		handles:     handles,
	}
}

// Used returns the number of bytes handed out, including padding.
func (h *Heap) Used() int {
	return h.used
}

// Objects returns all allocations in address order.
func (h *Heap) Objects() []HeapObject {
	return append([]HeapObject(nil), h.objects...)
}

// AllocateFlat allocates size bytes without a header.
func (h *Heap) AllocateFlat(size int, zero bool) (uint64, error) {
	addr, err := h.allocate(size, nil)
	if err != nil {
		return 0, err
	}
	if err := h.initialize(addr, size, zero); err != nil {
		return 0, err
	}
	return addr, nil
}

// AllocateObject allocates an instance of reference type t.
func (h *Heap) AllocateObject(t *metadata.TypeDef, zero bool) (uint64, error) {
	if t.IsValueType {
		return 0, fmt.Errorf("vm: cannot heap-allocate value type %v without boxing", t)
	}
	sig := metadata.ClassSig(t)
	size := h.factory.ObjectSize(t)
	return h.allocateWithHeader(sig, size, zero, nil)
}

// AllocateSzArray allocates a zero-based array of length elements.
func (h *Heap) AllocateSzArray(elem *metadata.TypeSig, length int, zero bool) (uint64, error) {
	if length < 0 {
		return 0, fmt.Errorf("vm: negative array length %d", length)
	}
	ptr := h.factory.PointerSize()
	size := 2*ptr + length*h.factory.TypeSize(elem)
	return h.allocateWithHeader(metadata.SzArrayOf(elem), size, zero, func(addr uint64) error {
		return h.WriteBytes(addr+uint64(ptr), h.factory.PointerBytes(uint64(length)))
	})
}

// AllocateString allocates a string object holding s.
func (h *Heap) AllocateString(s string) (uint64, error) {
	units, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return 0, fmt.Errorf("vm: encoding string: %w", err)
	}
	ptr := h.factory.PointerSize()
	size := ptr + 4 + len(units)
	return h.allocateWithHeader(metadata.String, size, true, func(addr uint64) error {
		data := make([]byte, 4+len(units))
		binary.LittleEndian.PutUint32(data, uint32(len(units)/2))
		copy(data[4:], units)
		return h.WriteBytes(addr+uint64(ptr), data)
	})
}

func (h *Heap) allocateWithHeader(sig *metadata.TypeSig, size int, zero bool, init func(uint64) error) (uint64, error) {
	handle, err := h.handles.GetHandle(sig)
	if err != nil {
		return 0, err
	}
	addr, err := h.allocate(size, sig)
	if err != nil {
		return 0, err
	}
	if err := h.initialize(addr, size, zero); err != nil {
		return 0, err
	}
	if err := h.WriteBytes(addr, h.factory.PointerBytes(handle)); err != nil {
		return 0, err
	}
	if init != nil {
		if err := init(addr); err != nil {
			return 0, err
		}
	}
	return addr, nil
}

func (h *Heap) allocate(size int, sig *metadata.TypeSig) (uint64, error) {
	start := align(h.used, h.factory.PointerSize())
	if start+size > h.Size() {
		return 0, fmt.Errorf("%w: need %d bytes, %d of %d used", ErrHeapExhausted, size, h.used, h.Size())
	}
	h.used = start + size
	addr := h.AddressRange().Start + uint64(start)
	h.objects = append(h.objects, HeapObject{Address: addr, Size: size, Type: sig})
	return addr, nil
}

func (h *Heap) initialize(addr uint64, size int, zero bool) error {
	if size == 0 {
		return nil
	}
	pool := h.factory.Pool()
	buf := pool.Rent(size, zero)
	defer pool.Return(buf)
	return h.Write(addr, buf)
}
