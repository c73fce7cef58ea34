package vm

import (
	"fmt"

	"github.com/chazu/cilemu/memory"
	"github.com/chazu/cilemu/metadata"
)

// StaticFieldStorage is the mapped region holding static fields. Slots are
// assigned lazily on first access and start zeroed.
type StaticFieldStorage struct {
	*memory.BasicMemory
	factory   *ValueFactory
	used      int
	addresses map[*metadata.FieldDef]uint64
}

// NewStaticFieldStorage creates a storage region of size bytes.
func NewStaticFieldStorage(size int, factory *ValueFactory) *StaticFieldStorage {
	return &StaticFieldStorage{
		BasicMemory: memory.NewBasicMemory(size, true),
		factory:     factory,
		addresses:   make(map[*metadata.FieldDef]uint64),
	}
}

// GetFieldAddress returns the address of a static field's slot.
func (s *StaticFieldStorage) GetFieldAddress(field *metadata.FieldDef) (uint64, error) {
	if !field.IsStatic {
		return 0, fmt.Errorf("vm: field %v is not static", field)
	}
	if addr, ok := s.addresses[field]; ok {
		return addr, nil
	}

	size := s.factory.TypeSize(field.Signature)
	start := align(s.used, s.factory.PointerSize())
	if start+size > s.Size() {
		return 0, fmt.Errorf("vm: static field storage full allocating %v", field)
	}
	s.used = start + size
	addr := s.AddressRange().Start + uint64(start)
	s.addresses[field] = addr
	return addr, nil
}

// Fields returns the static fields allocated so far.
func (s *StaticFieldStorage) Fields() map[*metadata.FieldDef]uint64 {
	result := make(map[*metadata.FieldDef]uint64, len(s.addresses))
	for f, addr := range s.addresses {
		result[f] = addr
	}
	return result
}
