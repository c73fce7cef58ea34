package vm

import (
	"github.com/chazu/cilemu/cil"
)

func variableHandlers() map[cil.Code]OpCodeHandler {
	handlers := map[cil.Code]OpCodeHandler{
		cil.Ldarg:  FallThrough(ldargHandler),
		cil.Starg:  FallThrough(stargHandler),
		cil.Ldarga: FallThrough(ldargaHandler),
		cil.Ldloc:  FallThrough(ldlocHandler),
		cil.Stloc:  FallThrough(stlocHandler),
		cil.Ldloca: FallThrough(ldlocaHandler),
	}
	for _, code := range []cil.Code{cil.Ldarg0, cil.Ldarg1, cil.Ldarg2, cil.Ldarg3} {
		handlers[code] = FallThrough(ldargHandler)
	}
	for _, code := range []cil.Code{cil.Ldloc0, cil.Ldloc1, cil.Ldloc2, cil.Ldloc3} {
		handlers[code] = FallThrough(ldlocHandler)
	}
	for _, code := range []cil.Code{cil.Stloc0, cil.Stloc1, cil.Stloc2, cil.Stloc3} {
		handlers[code] = FallThrough(stlocHandler)
	}
	return handlers
}

func variableIndex(instr *cil.Instruction) int {
	i, ok := instr.VariableIndex()
	if !ok {
		panic(invalidProgram("%s operand %T is not a variable index", instr.OpCode.Name, instr.Operand))
	}
	return i
}

func ldargHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	frame := ctx.CurrentFrame()
	i := variableIndex(instr)
	v, err := frame.ReadArgument(i)
	if err != nil {
		return DispatchResult{}, err
	}
	defer ctx.Machine.ValueFactory.Pool().Return(v)
	frame.EvaluationStack.PushValue(v, frame.ArgumentType(i))
	return Success(), nil
}

func stargHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	frame := ctx.CurrentFrame()
	i := variableIndex(instr)
	if i < 0 || i >= frame.ArgumentCount() {
		return DispatchResult{}, invalidProgram("argument index %d out of range", i)
	}
	v := frame.EvaluationStack.PopTyped(frame.ArgumentType(i))
	defer ctx.Machine.ValueFactory.Pool().Return(v)
	return Success(), frame.WriteArgument(i, v)
}

func ldargaHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	addr, err := ctx.CurrentFrame().ArgumentAddress(variableIndex(instr))
	if err != nil {
		return DispatchResult{}, err
	}
	pushPointer(ctx, addr, SlotI)
	return Success(), nil
}

func ldlocHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	frame := ctx.CurrentFrame()
	i := variableIndex(instr)
	v, err := frame.ReadLocal(i)
	if err != nil {
		return DispatchResult{}, err
	}
	defer ctx.Machine.ValueFactory.Pool().Return(v)
	frame.EvaluationStack.PushValue(v, frame.LocalType(i))
	return Success(), nil
}

func stlocHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	frame := ctx.CurrentFrame()
	i := variableIndex(instr)
	if i < 0 || i >= frame.LocalCount() {
		return DispatchResult{}, invalidProgram("local index %d out of range", i)
	}
	v := frame.EvaluationStack.PopTyped(frame.LocalType(i))
	defer ctx.Machine.ValueFactory.Pool().Return(v)
	return Success(), frame.WriteLocal(i, v)
}

func ldlocaHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	addr, err := ctx.CurrentFrame().LocalAddress(variableIndex(instr))
	if err != nil {
		return DispatchResult{}, err
	}
	pushPointer(ctx, addr, SlotI)
	return Success(), nil
}
