package vm

import (
	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

// ---------------------------------------------------------------------------
// Stack slots: values in their evaluation-stack form
// ---------------------------------------------------------------------------

// StackSlotType is the shape of a value on the evaluation stack. Narrow
// integers widen to I4, both float widths to F.
type StackSlotType uint8

const (
	SlotI4 StackSlotType = iota
	SlotI8
	SlotI
	SlotF
	SlotO
	SlotStruct
)

var slotTypeNames = [...]string{"int32", "int64", "native int", "F", "O", "struct"}

func (t StackSlotType) String() string {
	if int(t) < len(slotTypeNames) {
		return slotTypeNames[t]
	}
	return "invalid"
}

// StackSlot is one evaluation-stack entry. Contents is rented from the
// machine's pool.
type StackSlot struct {
	Contents *bitvec.Vector
	Type     StackSlotType
}

// SlotTypeOf returns the stack shape of sig.
func (f *ValueFactory) SlotTypeOf(sig *metadata.TypeSig) StackSlotType {
	switch sig.Element {
	case metadata.ElementBoolean, metadata.ElementChar,
		metadata.ElementI1, metadata.ElementU1,
		metadata.ElementI2, metadata.ElementU2,
		metadata.ElementI4, metadata.ElementU4:
		return SlotI4
	case metadata.ElementI8, metadata.ElementU8:
		return SlotI8
	case metadata.ElementR4, metadata.ElementR8:
		return SlotF
	case metadata.ElementI, metadata.ElementU, metadata.ElementPtr, metadata.ElementByRef:
		return SlotI
	case metadata.ElementValueType:
		return SlotStruct
	default:
		return SlotO
	}
}

func (f *ValueFactory) slotWidth(t StackSlotType, sig *metadata.TypeSig) int {
	switch t {
	case SlotI4:
		return 4
	case SlotI8, SlotF:
		return 8
	case SlotStruct:
		return f.TypeSize(sig)
	default:
		return f.PointerSize()
	}
}

// ToCliValue widens v, a value of sig in any width, to its stack form. v is
// not consumed.
func (f *ValueFactory) ToCliValue(v *bitvec.Vector, sig *metadata.TypeSig) StackSlot {
	t := f.SlotTypeOf(sig)
	out := f.pool.Rent(f.slotWidth(t, sig), false)

	if sig.Element == metadata.ElementR4 {
		if v.IsFullyKnown() {
			out.CopyFrom(bitvec.FromFloat64(float64(v.Float32())))
		}
		return StackSlot{Contents: out, Type: t}
	}
	v.ExtendInto(out, sig.IsSigned())
	return StackSlot{Contents: out, Type: t}
}

// FromCliValue narrows a stack value to the memory form of sig. The slot is
// not consumed.
func (f *ValueFactory) FromCliValue(slot StackSlot, sig *metadata.TypeSig) *bitvec.Vector {
	out := f.pool.Rent(f.TypeSize(sig), false)
	if sig.Element == metadata.ElementR4 && slot.Type == SlotF {
		if slot.Contents.IsFullyKnown() {
			out.CopyFrom(bitvec.FromFloat32(float32(slot.Contents.Float64())))
		}
		return out
	}
	slot.Contents.ExtendInto(out, slot.Type != SlotF && sig.IsSigned())
	return out
}

// UnknownSlot rents a fully unknown stack value of sig's shape.
func (f *ValueFactory) UnknownSlot(sig *metadata.TypeSig) StackSlot {
	t := f.SlotTypeOf(sig)
	return StackSlot{Contents: f.pool.Rent(f.slotWidth(t, sig), false), Type: t}
}

// Normalize converts v to exactly the memory width of sig.
func (f *ValueFactory) Normalize(v *bitvec.Vector, sig *metadata.TypeSig) *bitvec.Vector {
	slot := f.ToCliValue(v, sig)
	defer f.pool.Return(slot.Contents)
	return f.FromCliValue(slot, sig)
}
