package vm

import (
	"github.com/chazu/cilemu/cil"
	"github.com/chazu/cilemu/pkg/bitvec"
)

func constantHandlers() map[cil.Code]OpCodeHandler {
	handlers := map[cil.Code]OpCodeHandler{
		cil.Ldnull: FallThrough(ldnullHandler),
		cil.LdcI4:  FallThrough(ldcI4Handler),
		cil.LdcI8:  FallThrough(ldcI8Handler),
		cil.LdcR4:  FallThrough(ldcR4Handler),
		cil.LdcR8:  FallThrough(ldcR8Handler),
		cil.Ldstr:  FallThrough(ldstrHandler),
	}
	for code := cil.LdcI4M1; code <= cil.LdcI48; code++ {
		handlers[code] = FallThrough(ldcI4MacroHandler)
	}
	return handlers
}

func push(ctx *ExecutionContext, v *bitvec.Vector, t StackSlotType) {
	pooled := ctx.Machine.ValueFactory.Pool().RentCopy(v)
	ctx.CurrentFrame().EvaluationStack.Push(StackSlot{Contents: pooled, Type: t})
}

func pushUnknown(ctx *ExecutionContext, width int, t StackSlotType) {
	v := ctx.Machine.ValueFactory.Pool().Rent(width, false)
	ctx.CurrentFrame().EvaluationStack.Push(StackSlot{Contents: v, Type: t})
}

func pushPointer(ctx *ExecutionContext, addr uint64, t StackSlotType) {
	v := ctx.Machine.ValueFactory.CreateNativeInteger(addr)
	ctx.CurrentFrame().EvaluationStack.Push(StackSlot{Contents: v, Type: t})
}

func ldnullHandler(ctx *ExecutionContext, _ *cil.Instruction) (DispatchResult, error) {
	pushPointer(ctx, 0, SlotO)
	return Success(), nil
}

func ldcI4MacroHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	value := int32(instr.OpCode.Code) - int32(cil.LdcI40)
	push(ctx, bitvec.FromInt32(value), SlotI4)
	return Success(), nil
}

func ldcI4Handler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	push(ctx, bitvec.FromInt32(int32(operandInt64(instr))), SlotI4)
	return Success(), nil
}

func ldcI8Handler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	push(ctx, bitvec.FromInt64(operandInt64(instr), 8), SlotI8)
	return Success(), nil
}

func ldcR4Handler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	value, ok := instr.Operand.(float32)
	if !ok {
		panic(invalidProgram("ldc.r4 operand %T", instr.Operand))
	}
	push(ctx, bitvec.FromFloat64(float64(value)), SlotF)
	return Success(), nil
}

func ldcR8Handler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	value, ok := instr.Operand.(float64)
	if !ok {
		panic(invalidProgram("ldc.r8 operand %T", instr.Operand))
	}
	push(ctx, bitvec.FromFloat64(value), SlotF)
	return Success(), nil
}

func ldstrHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	s, ok := instr.Operand.(string)
	if !ok {
		panic(invalidProgram("ldstr operand %T", instr.Operand))
	}
	addr, err := ctx.Machine.InternString(s)
	if err != nil {
		return DispatchResult{}, err
	}
	pushPointer(ctx, addr, SlotO)
	return Success(), nil
}

func operandInt64(instr *cil.Instruction) int64 {
	switch v := instr.Operand.(type) {
	case int32:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case uint32:
		return int64(v)
	}
	panic(invalidProgram("%s operand %T is not an integer", instr.OpCode.Name, instr.Operand))
}
