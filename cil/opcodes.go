// Package cil defines the decoded instruction shapes the engine consumes:
// opcodes, operands and instruction streams addressable by offset.
//
// Decoding the binary method-body format is not part of this package; a
// decoder produces these values.
package cil

// Code is the numeric opcode value. Two-byte opcodes carry the 0xFE prefix
// in the high byte.
type Code uint16

// One-byte opcodes.
const (
	Nop      Code = 0x00
	Ldarg0   Code = 0x02
	Ldarg1   Code = 0x03
	Ldarg2   Code = 0x04
	Ldarg3   Code = 0x05
	Ldloc0   Code = 0x06
	Ldloc1   Code = 0x07
	Ldloc2   Code = 0x08
	Ldloc3   Code = 0x09
	Stloc0   Code = 0x0A
	Stloc1   Code = 0x0B
	Stloc2   Code = 0x0C
	Stloc3   Code = 0x0D
	Ldnull   Code = 0x14
	LdcI4M1  Code = 0x15
	LdcI40   Code = 0x16
	LdcI41   Code = 0x17
	LdcI42   Code = 0x18
	LdcI43   Code = 0x19
	LdcI44   Code = 0x1A
	LdcI45   Code = 0x1B
	LdcI46   Code = 0x1C
	LdcI47   Code = 0x1D
	LdcI48   Code = 0x1E
	LdcI4    Code = 0x20
	LdcI8    Code = 0x21
	LdcR4    Code = 0x22
	LdcR8    Code = 0x23
	Dup      Code = 0x25
	Pop      Code = 0x26
	Call     Code = 0x28
	Ret      Code = 0x2A
	Br       Code = 0x38
	Brfalse  Code = 0x39
	Brtrue   Code = 0x3A
	LdindI4  Code = 0x4A
	LdindI8  Code = 0x4C
	StindI4  Code = 0x54
	StindI8  Code = 0x55
	Add      Code = 0x58
	Sub      Code = 0x59
	Mul      Code = 0x5A
	And      Code = 0x5F
	Or       Code = 0x60
	Xor      Code = 0x61
	Neg      Code = 0x65
	Not      Code = 0x66
	ConvI4   Code = 0x69
	ConvI8   Code = 0x6A
	Callvirt Code = 0x6F
	Ldstr    Code = 0x72
	Newobj   Code = 0x73
	Throw    Code = 0x7A
	Ldfld    Code = 0x7B
	Stfld    Code = 0x7D
	Ldsfld   Code = 0x7E
	Stsfld   Code = 0x80
	Newarr   Code = 0x8D
	Ldlen    Code = 0x8E
	ConvI    Code = 0xD3
)

// Two-byte opcodes.
const (
	Ceq     Code = 0xFE01
	Cgt     Code = 0xFE02
	CgtUn   Code = 0xFE03
	Clt     Code = 0xFE04
	CltUn   Code = 0xFE05
	Ldarg   Code = 0xFE09
	Ldarga  Code = 0xFE0A
	Starg   Code = 0xFE0B
	Ldloc   Code = 0xFE0C
	Ldloca  Code = 0xFE0D
	Stloc   Code = 0xFE0E
	Initobj Code = 0xFE15
)

// OperandKind identifies the encoding of an instruction's operand.
type OperandKind uint8

const (
	InlineNone OperandKind = iota
	InlineI
	InlineI8
	ShortInlineR
	InlineR
	InlineString
	InlineMethod
	InlineField
	InlineType
	InlineBrTarget
	InlineVar
)

// Size returns the encoded operand size in bytes.
func (k OperandKind) Size() int {
	switch k {
	case InlineNone:
		return 0
	case InlineI8, InlineR:
		return 8
	case InlineVar:
		return 2
	default:
		return 4
	}
}

// FlowControl describes how an opcode affects the program counter.
type FlowControl uint8

const (
	FlowNext FlowControl = iota
	FlowBranch
	FlowCondBranch
	FlowCall
	FlowReturn
	FlowThrow
)

// OpCode describes one opcode.
type OpCode struct {
	Code    Code
	Name    string
	Operand OperandKind
	Flow    FlowControl
}

// IsTwoByte reports whether the opcode carries the 0xFE prefix.
func (op OpCode) IsTwoByte() bool {
	return op.Code > 0xFF
}

// Size returns the encoded opcode size (without operand).
func (op OpCode) Size() int {
	if op.IsTwoByte() {
		return 2
	}
	return 1
}

func (op OpCode) String() string {
	return op.Name
}

var opcodes = map[Code]OpCode{}

func def(code Code, name string, operand OperandKind, flow FlowControl) {
	opcodes[code] = OpCode{Code: code, Name: name, Operand: operand, Flow: flow}
}

func init() {
	def(Nop, "nop", InlineNone, FlowNext)
	def(Ldarg0, "ldarg.0", InlineNone, FlowNext)
	def(Ldarg1, "ldarg.1", InlineNone, FlowNext)
	def(Ldarg2, "ldarg.2", InlineNone, FlowNext)
	def(Ldarg3, "ldarg.3", InlineNone, FlowNext)
	def(Ldloc0, "ldloc.0", InlineNone, FlowNext)
	def(Ldloc1, "ldloc.1", InlineNone, FlowNext)
	def(Ldloc2, "ldloc.2", InlineNone, FlowNext)
	def(Ldloc3, "ldloc.3", InlineNone, FlowNext)
	def(Stloc0, "stloc.0", InlineNone, FlowNext)
	def(Stloc1, "stloc.1", InlineNone, FlowNext)
	def(Stloc2, "stloc.2", InlineNone, FlowNext)
	def(Stloc3, "stloc.3", InlineNone, FlowNext)
	def(Ldnull, "ldnull", InlineNone, FlowNext)
	def(LdcI4M1, "ldc.i4.m1", InlineNone, FlowNext)
	def(LdcI40, "ldc.i4.0", InlineNone, FlowNext)
	def(LdcI41, "ldc.i4.1", InlineNone, FlowNext)
	def(LdcI42, "ldc.i4.2", InlineNone, FlowNext)
	def(LdcI43, "ldc.i4.3", InlineNone, FlowNext)
	def(LdcI44, "ldc.i4.4", InlineNone, FlowNext)
	def(LdcI45, "ldc.i4.5", InlineNone, FlowNext)
	def(LdcI46, "ldc.i4.6", InlineNone, FlowNext)
	def(LdcI47, "ldc.i4.7", InlineNone, FlowNext)
	def(LdcI48, "ldc.i4.8", InlineNone, FlowNext)
	def(LdcI4, "ldc.i4", InlineI, FlowNext)
	def(LdcI8, "ldc.i8", InlineI8, FlowNext)
	def(LdcR4, "ldc.r4", ShortInlineR, FlowNext)
	def(LdcR8, "ldc.r8", InlineR, FlowNext)
	def(Dup, "dup", InlineNone, FlowNext)
	def(Pop, "pop", InlineNone, FlowNext)
	def(Call, "call", InlineMethod, FlowCall)
	def(Ret, "ret", InlineNone, FlowReturn)
	def(Br, "br", InlineBrTarget, FlowBranch)
	def(Brfalse, "brfalse", InlineBrTarget, FlowCondBranch)
	def(Brtrue, "brtrue", InlineBrTarget, FlowCondBranch)
	def(LdindI4, "ldind.i4", InlineNone, FlowNext)
	def(LdindI8, "ldind.i8", InlineNone, FlowNext)
	def(StindI4, "stind.i4", InlineNone, FlowNext)
	def(StindI8, "stind.i8", InlineNone, FlowNext)
	def(Add, "add", InlineNone, FlowNext)
	def(Sub, "sub", InlineNone, FlowNext)
	def(Mul, "mul", InlineNone, FlowNext)
	def(And, "and", InlineNone, FlowNext)
	def(Or, "or", InlineNone, FlowNext)
	def(Xor, "xor", InlineNone, FlowNext)
	def(Neg, "neg", InlineNone, FlowNext)
	def(Not, "not", InlineNone, FlowNext)
	def(ConvI4, "conv.i4", InlineNone, FlowNext)
	def(ConvI8, "conv.i8", InlineNone, FlowNext)
	def(Callvirt, "callvirt", InlineMethod, FlowCall)
	def(Ldstr, "ldstr", InlineString, FlowNext)
	def(Newobj, "newobj", InlineMethod, FlowCall)
	def(Throw, "throw", InlineNone, FlowThrow)
	def(Ldfld, "ldfld", InlineField, FlowNext)
	def(Stfld, "stfld", InlineField, FlowNext)
	def(Ldsfld, "ldsfld", InlineField, FlowNext)
	def(Stsfld, "stsfld", InlineField, FlowNext)
	def(Newarr, "newarr", InlineType, FlowNext)
	def(Ldlen, "ldlen", InlineNone, FlowNext)
	def(ConvI, "conv.i", InlineNone, FlowNext)

	def(Ceq, "ceq", InlineNone, FlowNext)
	def(Cgt, "cgt", InlineNone, FlowNext)
	def(CgtUn, "cgt.un", InlineNone, FlowNext)
	def(Clt, "clt", InlineNone, FlowNext)
	def(CltUn, "clt.un", InlineNone, FlowNext)
	def(Ldarg, "ldarg", InlineVar, FlowNext)
	def(Ldarga, "ldarga", InlineVar, FlowNext)
	def(Starg, "starg", InlineVar, FlowNext)
	def(Ldloc, "ldloc", InlineVar, FlowNext)
	def(Ldloca, "ldloca", InlineVar, FlowNext)
	def(Stloc, "stloc", InlineVar, FlowNext)
	def(Initobj, "initobj", InlineType, FlowNext)
}

// Lookup returns the descriptor for a code.
func Lookup(code Code) (OpCode, bool) {
	op, ok := opcodes[code]
	return op, ok
}

// OpCodes returns every known opcode descriptor.
func OpCodes() []OpCode {
	result := make([]OpCode, 0, len(opcodes))
	for _, op := range opcodes {
		result = append(result, op)
	}
	return result
}
