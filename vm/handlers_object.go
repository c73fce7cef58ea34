package vm

import (
	"github.com/chazu/cilemu/cil"
	"github.com/chazu/cilemu/metadata"
)

func objectHandlers() map[cil.Code]OpCodeHandler {
	return map[cil.Code]OpCodeHandler{
		cil.Ldfld:  FallThrough(ldfldHandler),
		cil.Stfld:  FallThrough(stfldHandler),
		cil.Ldsfld: FallThrough(ldsfldHandler),
		cil.Stsfld: FallThrough(stsfldHandler),
		cil.Newarr: FallThrough(newarrHandler),
		cil.Ldlen:  FallThrough(ldlenHandler),
	}
}

func operandField(instr *cil.Instruction) *metadata.FieldDef {
	field, ok := instr.Operand.(*metadata.FieldDef)
	if !ok {
		panic(invalidProgram("%s operand %T is not a field", instr.OpCode.Name, instr.Operand))
	}
	return field
}

// ---------------------------------------------------------------------------
// Instance fields
// ---------------------------------------------------------------------------

func ldfldHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	factory := ctx.Machine.ValueFactory
	stack := ctx.CurrentFrame().EvaluationStack
	field := operandField(instr)
	if field.IsStatic {
		return DispatchResult{}, invalidProgram("ldfld on static field %v", field)
	}

	receiver := stack.PopExpect(SlotO, SlotI, SlotStruct)
	defer factory.Pool().Return(receiver.Contents)

	offset, err := factory.FieldOffset(field)
	if err != nil {
		return DispatchResult{}, err
	}

	// Value types on the stack carry their fields inline.
	if receiver.Type == SlotStruct {
		v := receiver.Contents.Slice(offset, factory.TypeSize(field.Signature))
		stack.PushValue(v, field.Signature)
		return Success(), nil
	}

	addr, ok, err := resolveAddress(ctx, instr, receiver, accessRead)
	if err != nil {
		return DispatchResult{}, err
	}
	if !ok {
		unknown := factory.CreateValue(field.Signature, false)
		defer factory.Pool().Return(unknown)
		stack.PushValue(unknown, field.Signature)
		return Success(), nil
	}
	if addr == 0 {
		return NullReference(ctx)
	}

	v := factory.CreateValue(field.Signature, false)
	defer factory.Pool().Return(v)
	if err := ctx.Machine.Memory.Read(addr+uint64(offset), v); err != nil {
		return DispatchResult{}, err
	}
	stack.PushValue(v, field.Signature)
	return Success(), nil
}

func stfldHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	factory := ctx.Machine.ValueFactory
	stack := ctx.CurrentFrame().EvaluationStack
	field := operandField(instr)
	if field.IsStatic {
		return DispatchResult{}, invalidProgram("stfld on static field %v", field)
	}

	v := stack.PopTyped(field.Signature)
	defer factory.Pool().Return(v)
	receiver := stack.PopExpect(SlotO, SlotI)
	defer factory.Pool().Return(receiver.Contents)

	offset, err := factory.FieldOffset(field)
	if err != nil {
		return DispatchResult{}, err
	}
	addr, ok, err := resolveAddress(ctx, instr, receiver, accessWrite)
	if err != nil {
		return DispatchResult{}, err
	}
	if !ok {
		return Success(), nil
	}
	if addr == 0 {
		return NullReference(ctx)
	}
	return Success(), ctx.Machine.Memory.Write(addr+uint64(offset), v)
}

// ---------------------------------------------------------------------------
// Static fields
// ---------------------------------------------------------------------------

func staticFieldAddress(ctx *ExecutionContext, instr *cil.Instruction) (*metadata.FieldDef, uint64, error) {
	field := operandField(instr)
	if !field.IsStatic {
		return nil, 0, invalidProgram("%s on instance field %v", instr.OpCode.Name, field)
	}
	addr, err := ctx.Machine.StaticFields.GetFieldAddress(field)
	return field, addr, err
}

func ldsfldHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	factory := ctx.Machine.ValueFactory
	field, addr, err := staticFieldAddress(ctx, instr)
	if err != nil {
		return DispatchResult{}, err
	}
	v := factory.CreateValue(field.Signature, false)
	defer factory.Pool().Return(v)
	if err := ctx.Machine.Memory.Read(addr, v); err != nil {
		return DispatchResult{}, err
	}
	ctx.CurrentFrame().EvaluationStack.PushValue(v, field.Signature)
	return Success(), nil
}

func stsfldHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	field, addr, err := staticFieldAddress(ctx, instr)
	if err != nil {
		return DispatchResult{}, err
	}
	v := ctx.CurrentFrame().EvaluationStack.PopTyped(field.Signature)
	defer ctx.Machine.ValueFactory.Pool().Return(v)
	return Success(), ctx.Machine.Memory.Write(addr, v)
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

func newarrHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	factory := ctx.Machine.ValueFactory
	elem := operandType(instr)

	length := ctx.CurrentFrame().EvaluationStack.PopExpect(SlotI4, SlotI)
	defer factory.Pool().Return(length.Contents)

	if !length.Contents.IsFullyKnown() {
		pushUnknown(ctx, factory.PointerSize(), SlotO)
		return Success(), nil
	}
	n := length.Contents.NativeInt(length.Type == SlotI4 || factory.Is32Bit())
	if n < 0 {
		return raise(ctx, ctx.Machine.Module.CorLib.OverflowException)
	}

	addr, err := ctx.Machine.Heap.AllocateSzArray(elem, int(n), true)
	if err != nil {
		return DispatchResult{}, err
	}
	pushPointer(ctx, addr, SlotO)
	return Success(), nil
}

func ldlenHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	factory := ctx.Machine.ValueFactory
	array := ctx.CurrentFrame().EvaluationStack.PopExpect(SlotO)
	defer factory.Pool().Return(array.Contents)

	addr, ok, err := resolveAddress(ctx, instr, array, accessRead)
	if err != nil {
		return DispatchResult{}, err
	}
	if !ok {
		pushUnknown(ctx, factory.PointerSize(), SlotI)
		return Success(), nil
	}
	if addr == 0 {
		return NullReference(ctx)
	}

	length := factory.Pool().Rent(factory.PointerSize(), false)
	if err := ctx.Machine.Memory.Read(addr+uint64(factory.PointerSize()), length); err != nil {
		factory.Pool().Return(length)
		return DispatchResult{}, err
	}
	ctx.CurrentFrame().EvaluationStack.Push(StackSlot{Contents: length, Type: SlotI})
	return Success(), nil
}
