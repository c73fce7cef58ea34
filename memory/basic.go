package memory

import (
	"github.com/chazu/cilemu/pkg/bitvec"
)

// BasicMemory is a contiguous region backed by a single bit vector.
type BasicMemory struct {
	base    uint64
	backing *bitvec.Vector
}

// NewBasicMemory creates a region of size bytes. When known is true the
// region starts as known zeroes; otherwise every bit is unknown.
func NewBasicMemory(size int, known bool) *BasicMemory {
	return &BasicMemory{backing: bitvec.New(size, known)}
}

// AddressRange implements Space.
func (m *BasicMemory) AddressRange() AddressRange {
	return NewAddressRange(m.base, uint64(m.backing.Width()))
}

// IsValidAddress implements Space.
func (m *BasicMemory) IsValidAddress(addr uint64) bool {
	return m.AddressRange().Contains(addr)
}

// Rebase implements Space.
func (m *BasicMemory) Rebase(base uint64) {
	m.base = base
}

// Size returns the region size in bytes.
func (m *BasicMemory) Size() int {
	return m.backing.Width()
}

// Read implements Space.
func (m *BasicMemory) Read(addr uint64, dst *bitvec.Vector) error {
	offset, ok := m.offset(addr, dst.Width())
	if !ok {
		return accessViolation("read", addr, dst.Width())
	}
	dst.CopyFrom(m.backing.Slice(offset, dst.Width()))
	return nil
}

// Write implements Space.
func (m *BasicMemory) Write(addr uint64, src *bitvec.Vector) error {
	offset, ok := m.offset(addr, src.Width())
	if !ok {
		return accessViolation("write", addr, src.Width())
	}
	m.backing.WriteAt(offset, src)
	return nil
}

// WriteBytes implements Space.
func (m *BasicMemory) WriteBytes(addr uint64, data []byte) error {
	offset, ok := m.offset(addr, len(data))
	if !ok {
		return accessViolation("write", addr, len(data))
	}
	m.backing.SetBytes(offset, data)
	return nil
}

// View returns a live view of length bytes at absolute address addr.
func (m *BasicMemory) View(addr uint64, length int) (*bitvec.Vector, error) {
	offset, ok := m.offset(addr, length)
	if !ok {
		return nil, accessViolation("read", addr, length)
	}
	return m.backing.Slice(offset, length), nil
}

func (m *BasicMemory) offset(addr uint64, length int) (int, bool) {
	r := m.AddressRange()
	if length < 0 || addr < r.Start {
		return 0, false
	}
	end := addr + uint64(length)
	if end < addr || end > r.End {
		return 0, false
	}
	return int(addr - r.Start), true
}
