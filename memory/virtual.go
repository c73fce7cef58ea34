package memory

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/cilemu/pkg/bitvec"
)

// ErrOverlap is returned when a mapping would overlap an existing one.
var ErrOverlap = errors.New("memory: mapping overlaps an existing region")

// Mapping is one entry of the virtual address map.
type Mapping struct {
	Base  uint64
	Space Space
}

// Range returns the absolute address range of the mapping.
func (m Mapping) Range() AddressRange {
	return m.Space.AddressRange()
}

// VirtualMemory is an address space of disjoint mapped spaces. Accesses are
// routed to exactly one space; an access that crosses a region boundary
// faults.
type VirtualMemory struct {
	maxAddress uint64
	mappings   []Mapping // sorted by Base
}

// NewVirtualMemory creates an empty address space whose valid addresses
// are [0, maxAddress].
func NewVirtualMemory(maxAddress uint64) *VirtualMemory {
	return &VirtualMemory{maxAddress: maxAddress}
}

// MaxAddress returns the highest valid address.
func (m *VirtualMemory) MaxAddress() uint64 {
	return m.maxAddress
}

// Map rebases space to base and registers it. The space is left untouched
// when the mapping is rejected.
func (m *VirtualMemory) Map(base uint64, space Space) error {
	r := NewAddressRange(base, space.AddressRange().Length())
	if r.End < r.Start || (r.Length() > 0 && r.End-1 > m.maxAddress) {
		return fmt.Errorf("memory: cannot map %v beyond max address %#x", r, m.maxAddress)
	}
	for _, existing := range m.mappings {
		if existing.Space == space {
			return fmt.Errorf("memory: space is already mapped at %v", existing.Range())
		}
		if existing.Range().Overlaps(r) {
			return fmt.Errorf("%w: %v overlaps %v", ErrOverlap, r, existing.Range())
		}
	}

	space.Rebase(base)
	m.mappings = append(m.mappings, Mapping{Base: base, Space: space})
	sort.Slice(m.mappings, func(i, j int) bool {
		return m.mappings[i].Base < m.mappings[j].Base
	})
	return nil
}

// Unmap removes the mapping registered at base.
func (m *VirtualMemory) Unmap(base uint64) error {
	for i, mapping := range m.mappings {
		if mapping.Base == base {
			m.mappings = append(m.mappings[:i], m.mappings[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("memory: no mapping at %#x", base)
}

// Mappings returns the current mappings ordered by base address.
func (m *VirtualMemory) Mappings() []Mapping {
	result := make([]Mapping, len(m.mappings))
	copy(result, m.mappings)
	return result
}

// FindSpace returns the space containing addr.
func (m *VirtualMemory) FindSpace(addr uint64) (Space, bool) {
	i := sort.Search(len(m.mappings), func(i int) bool {
		return m.mappings[i].Range().End > addr
	})
	if i < len(m.mappings) && m.mappings[i].Range().Contains(addr) {
		return m.mappings[i].Space, true
	}
	return nil, false
}

// IsValidAddress reports whether addr is mapped.
func (m *VirtualMemory) IsValidAddress(addr uint64) bool {
	_, ok := m.FindSpace(addr)
	return ok
}

// Read fills dst from addr.
func (m *VirtualMemory) Read(addr uint64, dst *bitvec.Vector) error {
	space, err := m.route("read", addr, dst.Width())
	if err != nil {
		return err
	}
	return space.Read(addr, dst)
}

// Write stores src at addr.
func (m *VirtualMemory) Write(addr uint64, src *bitvec.Vector) error {
	space, err := m.route("write", addr, src.Width())
	if err != nil {
		return err
	}
	return space.Write(addr, src)
}

// WriteBytes stores fully known data at addr.
func (m *VirtualMemory) WriteBytes(addr uint64, data []byte) error {
	space, err := m.route("write", addr, len(data))
	if err != nil {
		return err
	}
	return space.WriteBytes(addr, data)
}

func (m *VirtualMemory) route(op string, addr uint64, length int) (Space, error) {
	if addr > m.maxAddress {
		return nil, accessViolation(op, addr, length)
	}
	space, ok := m.FindSpace(addr)
	if !ok {
		return nil, accessViolation(op, addr, length)
	}
	end := addr + uint64(length)
	if end < addr || !space.AddressRange().ContainsRange(AddressRange{Start: addr, End: end}) {
		return nil, accessViolation(op, addr, length)
	}
	return space, nil
}
