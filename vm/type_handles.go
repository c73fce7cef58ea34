package vm

import (
	"fmt"

	"github.com/chazu/cilemu/memory"
	"github.com/chazu/cilemu/metadata"
)

const typeHandleStride = 8

// TypeHandleMemory is the runtime mock region. Every type that appears in an
// object header gets a slot here; the slot's address is the type handle
// stored in the header.
type TypeHandleMemory struct {
	*memory.BasicMemory
	types []*metadata.TypeSig
	index map[typeKey]int
}

type typeKey struct {
	element metadata.ElementType
	def     *metadata.TypeDef
	elem    string
}

func keyOf(sig *metadata.TypeSig) typeKey {
	k := typeKey{element: sig.Element, def: sig.Type}
	if sig.Elem != nil {
		k.elem = fmt.Sprintf("%v/%p", sig.Elem, sig.Elem.Type)
	}
	return k
}

// NewTypeHandleMemory creates a handle region of size bytes.
func NewTypeHandleMemory(size int) *TypeHandleMemory {
	return &TypeHandleMemory{
		BasicMemory: memory.NewBasicMemory(size, true),
		index:       make(map[typeKey]int),
	}
}

// GetHandle returns the handle of sig, assigning a slot on first use.
func (m *TypeHandleMemory) GetHandle(sig *metadata.TypeSig) (uint64, error) {
	key := keyOf(sig)
	if i, ok := m.index[key]; ok {
		return m.slotAddress(i), nil
	}

	i := len(m.types)
	if (i+1)*typeHandleStride > m.Size() {
		return 0, fmt.Errorf("vm: type handle region full (%d types)", i)
	}
	m.types = append(m.types, sig)
	m.index[key] = i

	addr := m.slotAddress(i)
	var slot [typeHandleStride]byte
	slot[0] = byte(i)
	slot[1] = byte(i >> 8)
	slot[2] = byte(i >> 16)
	slot[3] = byte(i >> 24)
	if err := m.WriteBytes(addr, slot[:]); err != nil {
		return 0, err
	}
	return addr, nil
}

// LookupType maps a handle back to its type.
func (m *TypeHandleMemory) LookupType(handle uint64) (*metadata.TypeSig, bool) {
	start := m.AddressRange().Start
	if handle < start || (handle-start)%typeHandleStride != 0 {
		return nil, false
	}
	i := int((handle - start) / typeHandleStride)
	if i >= len(m.types) {
		return nil, false
	}
	return m.types[i], true
}

// Types returns every registered type in handle order.
func (m *TypeHandleMemory) Types() []*metadata.TypeSig {
	return append([]*metadata.TypeSig(nil), m.types...)
}

func (m *TypeHandleMemory) slotAddress(i int) uint64 {
	return m.AddressRange().Start + uint64(i*typeHandleStride)
}
