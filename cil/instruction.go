package cil

import (
	"fmt"
)

// Label is an absolute branch target offset.
type Label int

// Instruction is one decoded instruction. Operand holds an int32, int64,
// float32, float64, string, Label, *Instruction (branch target), int
// (variable index), or a metadata descriptor.
type Instruction struct {
	Offset  int
	OpCode  OpCode
	Operand any
}

// New creates an instruction for a known code. It panics for unknown codes,
// which are a programming error in the decoder.
func New(code Code, operand any) *Instruction {
	op, ok := Lookup(code)
	if !ok {
		panic(fmt.Sprintf("cil: unknown opcode %#x", uint16(code)))
	}
	return &Instruction{OpCode: op, Operand: operand}
}

// Size returns the encoded size of the instruction.
func (i *Instruction) Size() int {
	return i.OpCode.Size() + i.OpCode.Operand.Size()
}

// Next returns the offset of the following instruction.
func (i *Instruction) Next() int {
	return i.Offset + i.Size()
}

// BranchTarget returns the absolute target offset of a branch operand.
func (i *Instruction) BranchTarget() (int, bool) {
	switch target := i.Operand.(type) {
	case Label:
		return int(target), true
	case *Instruction:
		return target.Offset, true
	case int:
		return target, true
	default:
		return 0, false
	}
}

// VariableIndex returns the local/argument index for variable opcodes,
// including the macro forms that encode the index in the opcode.
func (i *Instruction) VariableIndex() (int, bool) {
	switch i.OpCode.Code {
	case Ldarg0, Ldloc0, Stloc0:
		return 0, true
	case Ldarg1, Ldloc1, Stloc1:
		return 1, true
	case Ldarg2, Ldloc2, Stloc2:
		return 2, true
	case Ldarg3, Ldloc3, Stloc3:
		return 3, true
	}
	switch v := i.Operand.(type) {
	case int:
		return v, true
	case uint16:
		return int(v), true
	default:
		return 0, false
	}
}

func (i *Instruction) String() string {
	if i.Operand == nil {
		return fmt.Sprintf("IL_%04X: %s", i.Offset, i.OpCode.Name)
	}
	if target, ok := i.Operand.(*Instruction); ok {
		return fmt.Sprintf("IL_%04X: %s IL_%04X", i.Offset, i.OpCode.Name, target.Offset)
	}
	return fmt.Sprintf("IL_%04X: %s %v", i.Offset, i.OpCode.Name, i.Operand)
}

// ---------------------------------------------------------------------------
// InstructionList: offset-addressable instruction stream
// ---------------------------------------------------------------------------

// InstructionList is an ordered instruction stream with O(1) lookup by
// offset.
type InstructionList struct {
	items    []*Instruction
	byOffset map[int]*Instruction
}

// NewInstructionList assigns sequential offsets to instrs and indexes them.
func NewInstructionList(instrs ...*Instruction) *InstructionList {
	l := &InstructionList{
		items:    instrs,
		byOffset: make(map[int]*Instruction, len(instrs)),
	}
	offset := 0
	for _, instr := range instrs {
		instr.Offset = offset
		l.byOffset[offset] = instr
		offset += instr.Size()
	}
	return l
}

// GetByOffset returns the instruction starting at offset, or nil.
func (l *InstructionList) GetByOffset(offset int) *Instruction {
	return l.byOffset[offset]
}

// Items returns the instructions in order.
func (l *InstructionList) Items() []*Instruction {
	return l.items
}

// Len returns the number of instructions.
func (l *InstructionList) Len() int {
	return len(l.items)
}

// Size returns the encoded size of the whole stream.
func (l *InstructionList) Size() int {
	if len(l.items) == 0 {
		return 0
	}
	return l.items[len(l.items)-1].Next()
}
