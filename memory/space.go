// Package memory implements the emulated address space: disjoint regions
// of partial-knowledge memory mapped at absolute addresses.
package memory

import (
	"errors"
	"fmt"

	"github.com/chazu/cilemu/pkg/bitvec"
)

// ErrAccessViolation is matched by every out-of-range or unmapped access.
var ErrAccessViolation = errors.New("memory: access violation")

// AccessViolationError describes a faulting access.
type AccessViolationError struct {
	Op      string // "read" or "write"
	Address uint64
	Length  int
}

func (e *AccessViolationError) Error() string {
	return fmt.Sprintf("memory: access violation: %s of %d bytes at %#x", e.Op, e.Length, e.Address)
}

func (e *AccessViolationError) Unwrap() error {
	return ErrAccessViolation
}

func accessViolation(op string, addr uint64, length int) error {
	return &AccessViolationError{Op: op, Address: addr, Length: length}
}

// AddressRange is the half-open interval [Start, End).
type AddressRange struct {
	Start uint64
	End   uint64
}

// NewAddressRange creates a range of the given length starting at start.
func NewAddressRange(start, length uint64) AddressRange {
	return AddressRange{Start: start, End: start + length}
}

// Length returns the number of addresses in the range.
func (r AddressRange) Length() uint64 {
	return r.End - r.Start
}

// Contains reports whether addr lies inside the range.
func (r AddressRange) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

// ContainsRange reports whether o lies entirely inside r.
func (r AddressRange) ContainsRange(o AddressRange) bool {
	return o.Start >= r.Start && o.End <= r.End && o.Start <= o.End
}

// Overlaps reports whether r and o share at least one address.
func (r AddressRange) Overlaps(o AddressRange) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r AddressRange) String() string {
	return fmt.Sprintf("[%#x, %#x)", r.Start, r.End)
}

// Space is a mapped region of memory addressed absolutely. A space learns
// its base address when it is mapped.
type Space interface {
	AddressRange() AddressRange
	IsValidAddress(addr uint64) bool
	Rebase(base uint64)
	Read(addr uint64, dst *bitvec.Vector) error
	Write(addr uint64, src *bitvec.Vector) error
	WriteBytes(addr uint64, data []byte) error
}
