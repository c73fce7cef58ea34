package vm

import (
	"fmt"
	"reflect"

	"github.com/chazu/cilemu/memory"
)

const objectMapStride = 8

// ObjectMapMemory gives opaque Go objects an address in the emulated
// address space so they can travel through the machine as references.
type ObjectMapMemory struct {
	*memory.BasicMemory
	objects []any
	index   map[any]int
}

// NewObjectMapMemory creates a region with room for size/8 objects.
func NewObjectMapMemory(size int) *ObjectMapMemory {
	return &ObjectMapMemory{
		BasicMemory: memory.NewBasicMemory(size, true),
		index:       make(map[any]int),
	}
}

// GetOrCreateAddress returns the address representing obj. Comparable
// values map to the same address every time; other values get a fresh slot.
func (m *ObjectMapMemory) GetOrCreateAddress(obj any) (uint64, error) {
	keyed := obj != nil && reflect.TypeOf(obj).Comparable()
	if keyed {
		if i, ok := m.index[obj]; ok {
			return m.slotAddress(i), nil
		}
	}

	i := len(m.objects)
	if (i+1)*objectMapStride > m.Size() {
		return 0, fmt.Errorf("vm: object map full (%d objects)", i)
	}
	m.objects = append(m.objects, obj)
	if keyed {
		m.index[obj] = i
	}
	return m.slotAddress(i), nil
}

// TryGetObject returns the Go object mapped at addr.
func (m *ObjectMapMemory) TryGetObject(addr uint64) (any, bool) {
	start := m.AddressRange().Start
	if addr < start || (addr-start)%objectMapStride != 0 {
		return nil, false
	}
	i := int((addr - start) / objectMapStride)
	if i >= len(m.objects) {
		return nil, false
	}
	return m.objects[i], true
}

// Len returns the number of mapped objects.
func (m *ObjectMapMemory) Len() int {
	return len(m.objects)
}

func (m *ObjectMapMemory) slotAddress(i int) uint64 {
	return m.AddressRange().Start + uint64(i*objectMapStride)
}
