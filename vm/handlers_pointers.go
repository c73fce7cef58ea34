package vm

import (
	"github.com/chazu/cilemu/cil"
	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/trilean"
)

func pointerHandlers() map[cil.Code]OpCodeHandler {
	return map[cil.Code]OpCodeHandler{
		cil.Initobj: FallThrough(initobjHandler),
		cil.LdindI4: FallThrough(ldindHandler(metadata.Int32)),
		cil.LdindI8: FallThrough(ldindHandler(metadata.Int64)),
		cil.StindI4: FallThrough(stindHandler(metadata.Int32)),
		cil.StindI8: FallThrough(stindHandler(metadata.Int64)),
	}
}

// ---------------------------------------------------------------------------
// Address resolution
// ---------------------------------------------------------------------------

type accessKind uint8

const (
	accessRead accessKind = iota
	accessWrite
)

// resolveAddress turns an address operand into a concrete address. A
// partially known address is handed to the UnknownResolver; ok is false
// when it declined to pick one.
func resolveAddress(ctx *ExecutionContext, instr *cil.Instruction, slot StackSlot, kind accessKind) (addr uint64, ok bool, err error) {
	if slot.Contents.IsFullyKnown() {
		return slot.Contents.Uint64(), true, nil
	}
	if kind == accessWrite {
		return ctx.Machine.UnknownResolver.ResolveDestinationPointer(ctx, instr, slot)
	}
	return ctx.Machine.UnknownResolver.ResolveSourcePointer(ctx, instr, slot)
}

// operandType accepts a type signature or definition operand.
func operandType(instr *cil.Instruction) *metadata.TypeSig {
	switch t := instr.Operand.(type) {
	case *metadata.TypeSig:
		return t
	case *metadata.TypeDef:
		return t.Sig()
	}
	panic(invalidProgram("%s operand %T is not a type", instr.OpCode.Name, instr.Operand))
}

// ---------------------------------------------------------------------------
// initobj, ldind, stind
// ---------------------------------------------------------------------------

func initobjHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	factory := ctx.Machine.ValueFactory
	t := operandType(instr)

	slot := ctx.CurrentFrame().EvaluationStack.PopExpect(SlotI, SlotO, SlotI4)
	defer factory.Pool().Return(slot.Contents)

	addr, ok, err := resolveAddress(ctx, instr, slot, accessWrite)
	if err != nil {
		return DispatchResult{}, err
	}
	if !ok {
		return Success(), nil
	}
	if addr == 0 {
		return NullReference(ctx)
	}

	v := factory.CreateValue(t, true)
	defer factory.Pool().Return(v)
	return Success(), ctx.Machine.Memory.Write(addr, v)
}

func ldindHandler(sig *metadata.TypeSig) FallThrough {
	return func(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
		factory := ctx.Machine.ValueFactory
		stack := ctx.CurrentFrame().EvaluationStack

		slot := stack.PopExpect(SlotI, SlotI4)
		defer factory.Pool().Return(slot.Contents)

		addr, ok, err := resolveAddress(ctx, instr, slot, accessRead)
		if err != nil {
			return DispatchResult{}, err
		}
		if !ok {
			stack.Push(factory.UnknownSlot(sig))
			return Success(), nil
		}
		if addr == 0 {
			return NullReference(ctx)
		}

		v := factory.CreateValue(sig, false)
		defer factory.Pool().Return(v)
		if err := ctx.Machine.Memory.Read(addr, v); err != nil {
			return DispatchResult{}, err
		}
		stack.PushValue(v, sig)
		return Success(), nil
	}
}

func stindHandler(sig *metadata.TypeSig) FallThrough {
	return func(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
		factory := ctx.Machine.ValueFactory
		stack := ctx.CurrentFrame().EvaluationStack

		v := stack.PopTyped(sig)
		defer factory.Pool().Return(v)
		slot := stack.PopExpect(SlotI, SlotI4)
		defer factory.Pool().Return(slot.Contents)

		addr, ok, err := resolveAddress(ctx, instr, slot, accessWrite)
		if err != nil {
			return DispatchResult{}, err
		}
		if !ok {
			return Success(), nil
		}
		if addr == 0 {
			return NullReference(ctx)
		}
		return Success(), ctx.Machine.Memory.Write(addr, v)
	}
}

// isNull reports whether slot is a known null reference.
func isNull(slot StackSlot) bool {
	return slot.Contents.IsZero() == trilean.True
}
