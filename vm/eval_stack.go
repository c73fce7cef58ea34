package vm

import (
	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

// EvaluationStack is a frame's operand stack. Underflow and shape
// mismatches panic with *InvalidProgramError; the dispatcher recovers them
// into errors.
type EvaluationStack struct {
	factory *ValueFactory
	slots   []StackSlot
}

// NewEvaluationStack creates an empty stack.
func NewEvaluationStack(factory *ValueFactory) *EvaluationStack {
	return &EvaluationStack{factory: factory}
}

// Push pushes a slot. The stack takes ownership of its contents.
func (s *EvaluationStack) Push(slot StackSlot) {
	s.slots = append(s.slots, slot)
}

// PushValue converts v to stack form and pushes it. v is not consumed.
func (s *EvaluationStack) PushValue(v *bitvec.Vector, sig *metadata.TypeSig) {
	s.Push(s.factory.ToCliValue(v, sig))
}

// Pop removes the top slot. The caller owns its contents.
func (s *EvaluationStack) Pop() StackSlot {
	if len(s.slots) == 0 {
		panic(invalidProgram("evaluation stack underflow"))
	}
	top := s.slots[len(s.slots)-1]
	s.slots[len(s.slots)-1] = StackSlot{}
	s.slots = s.slots[:len(s.slots)-1]
	return top
}

// PopTyped pops a slot and converts it to the memory form of sig. The
// returned vector is rented; the popped slot is returned to the pool.
func (s *EvaluationStack) PopTyped(sig *metadata.TypeSig) *bitvec.Vector {
	slot := s.Pop()
	defer s.factory.Pool().Return(slot.Contents)
	if want := s.factory.SlotTypeOf(sig); !compatibleSlots(slot.Type, want) {
		panic(invalidProgram("cannot use %v as %v", slot.Type, sig))
	}
	return s.factory.FromCliValue(slot, sig)
}

// compatibleSlots allows the implicit conversions between int32, native
// int and references that verifiable code relies on.
func compatibleSlots(have, want StackSlotType) bool {
	if have == want {
		return true
	}
	switch want {
	case SlotI4:
		return have == SlotI
	case SlotI:
		return have == SlotI4 || have == SlotO
	case SlotO:
		return have == SlotI
	}
	return false
}

// PopExpect pops a slot that must have one of the given shapes.
func (s *EvaluationStack) PopExpect(types ...StackSlotType) StackSlot {
	slot := s.Pop()
	for _, t := range types {
		if slot.Type == t {
			return slot
		}
	}
	s.factory.Pool().Return(slot.Contents)
	panic(invalidProgram("unexpected %v on evaluation stack (want %v)", slot.Type, types))
}

// Peek returns the top slot without removing it.
func (s *EvaluationStack) Peek() (StackSlot, bool) {
	if len(s.slots) == 0 {
		return StackSlot{}, false
	}
	return s.slots[len(s.slots)-1], true
}

// Count returns the number of slots.
func (s *EvaluationStack) Count() int {
	return len(s.slots)
}

// Slots returns the slots bottom first. The contents stay owned by the
// stack.
func (s *EvaluationStack) Slots() []StackSlot {
	return append([]StackSlot(nil), s.slots...)
}

// Clear returns every slot to the pool.
func (s *EvaluationStack) Clear() {
	for i, slot := range s.slots {
		s.factory.Pool().Return(slot.Contents)
		s.slots[i] = StackSlot{}
	}
	s.slots = s.slots[:0]
}
