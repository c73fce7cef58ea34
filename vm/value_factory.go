package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

// ---------------------------------------------------------------------------
// TypeLayout: field offsets of a type
// ---------------------------------------------------------------------------

// TypeLayout describes where the instance fields of a type live relative to
// the start of its field data (after the object header for reference types).
type TypeLayout struct {
	Type    *metadata.TypeDef
	Size    int
	Fields  []*metadata.FieldDef
	offsets map[*metadata.FieldDef]int
}

// Offset returns the offset of field within the layout.
func (l *TypeLayout) Offset(field *metadata.FieldDef) (int, bool) {
	off, ok := l.offsets[field]
	return off, ok
}

// ---------------------------------------------------------------------------
// ValueFactory: sizes, layouts and fresh values
// ---------------------------------------------------------------------------

// ValueFactory knows the architecture width and computes value sizes and
// type layouts. It owns the machine's bitvec pool.
type ValueFactory struct {
	module  *metadata.Module
	is32Bit bool
	pool    *bitvec.Pool
	layouts map[*metadata.TypeDef]*TypeLayout
}

// NewValueFactory creates a factory for module.
func NewValueFactory(module *metadata.Module, is32Bit bool) *ValueFactory {
	return &ValueFactory{
		module:  module,
		is32Bit: is32Bit,
		pool:    bitvec.NewPool(),
		layouts: make(map[*metadata.TypeDef]*TypeLayout),
	}
}

func (f *ValueFactory) Module() *metadata.Module { return f.module }
func (f *ValueFactory) CorLib() *metadata.CorLib { return f.module.CorLib }
func (f *ValueFactory) Is32Bit() bool            { return f.is32Bit }
func (f *ValueFactory) Pool() *bitvec.Pool       { return f.pool }

// PointerSize returns 4 or 8.
func (f *ValueFactory) PointerSize() int {
	if f.is32Bit {
		return 4
	}
	return 8
}

// TypeSize returns the number of bytes a value of sig occupies in memory.
func (f *ValueFactory) TypeSize(sig *metadata.TypeSig) int {
	switch sig.Element {
	case metadata.ElementVoid:
		return 0
	case metadata.ElementBoolean, metadata.ElementI1, metadata.ElementU1:
		return 1
	case metadata.ElementChar, metadata.ElementI2, metadata.ElementU2:
		return 2
	case metadata.ElementI4, metadata.ElementU4, metadata.ElementR4:
		return 4
	case metadata.ElementI8, metadata.ElementU8, metadata.ElementR8:
		return 8
	case metadata.ElementValueType:
		return f.Layout(sig.Type).Size
	default:
		return f.PointerSize()
	}
}

// Layout returns the instance-field layout of t, inherited fields first.
func (f *ValueFactory) Layout(t *metadata.TypeDef) *TypeLayout {
	if l, ok := f.layouts[t]; ok {
		return l
	}

	l := &TypeLayout{Type: t, offsets: make(map[*metadata.FieldDef]int)}
	offset := 0
	for _, field := range t.InstanceFields() {
		size := f.TypeSize(field.Signature)
		offset = align(offset, f.fieldAlignment(field.Signature, size))
		l.offsets[field] = offset
		l.Fields = append(l.Fields, field)
		offset += size
	}
	if t.IsValueType && offset == 0 {
		offset = 1
	}
	l.Size = offset
	f.layouts[t] = l
	return l
}

func (f *ValueFactory) fieldAlignment(sig *metadata.TypeSig, size int) int {
	if sig.Element == metadata.ElementValueType || size > f.PointerSize() {
		return f.PointerSize()
	}
	if size == 0 {
		return 1
	}
	return size
}

// ObjectSize returns the heap size of an instance of reference type t,
// including the header.
func (f *ValueFactory) ObjectSize(t *metadata.TypeDef) int {
	return f.PointerSize() + f.Layout(t).Size
}

// FieldOffset returns the offset of field from the start of an object
// (header included) or from the start of a value-type instance.
func (f *ValueFactory) FieldOffset(field *metadata.FieldDef) (int, error) {
	owner := field.DeclaringType
	off, ok := f.Layout(owner).Offset(field)
	if !ok {
		return 0, fmt.Errorf("vm: field %v is not an instance field", field)
	}
	if owner.IsValueType {
		return off, nil
	}
	return f.PointerSize() + off, nil
}

// CreateValue rents a value sized for sig, either zeroed or fully unknown.
func (f *ValueFactory) CreateValue(sig *metadata.TypeSig, zero bool) *bitvec.Vector {
	return f.pool.Rent(f.TypeSize(sig), zero)
}

// CreateNativeInteger rents a pointer-sized integer holding value.
func (f *ValueFactory) CreateNativeInteger(value uint64) *bitvec.Vector {
	v := f.pool.Rent(f.PointerSize(), true)
	v.SetBytes(0, f.PointerBytes(value))
	return v
}

// PointerBytes encodes value as a little-endian native integer.
func (f *ValueFactory) PointerBytes(value uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf[:f.PointerSize()]
}

func align(n, to int) int {
	if to <= 1 {
		return n
	}
	return (n + to - 1) / to * to
}
