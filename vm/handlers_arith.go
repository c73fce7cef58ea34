package vm

import (
	"math"

	"github.com/chazu/cilemu/cil"
	"github.com/chazu/cilemu/pkg/bitvec"
	"github.com/chazu/cilemu/pkg/trilean"
)

func arithmeticHandlers() map[cil.Code]OpCodeHandler {
	return map[cil.Code]OpCodeHandler{
		cil.Add: FallThrough(binaryNumeric((*bitvec.Vector).Add, func(x, y float64) float64 { return x + y })),
		cil.Sub: FallThrough(binaryNumeric((*bitvec.Vector).Sub, func(x, y float64) float64 { return x - y })),
		cil.Mul: FallThrough(binaryNumeric((*bitvec.Vector).Mul, func(x, y float64) float64 { return x * y })),
		cil.And: FallThrough(binaryNumeric((*bitvec.Vector).And, nil)),
		cil.Or:  FallThrough(binaryNumeric((*bitvec.Vector).Or, nil)),
		cil.Xor: FallThrough(binaryNumeric((*bitvec.Vector).Xor, nil)),
		cil.Neg: FallThrough(negHandler),
		cil.Not: FallThrough(notHandler),

		cil.ConvI4: FallThrough(convHandler(SlotI4)),
		cil.ConvI8: FallThrough(convHandler(SlotI8)),
		cil.ConvI:  FallThrough(convHandler(SlotI)),

		cil.Ceq:   FallThrough(compareHandler(compareEqual)),
		cil.Cgt:   FallThrough(compareHandler(compareGreater(true))),
		cil.CgtUn: FallThrough(compareHandler(compareGreater(false))),
		cil.Clt:   FallThrough(compareHandler(compareLess(true))),
		cil.CltUn: FallThrough(compareHandler(compareLess(false))),
	}
}

// ---------------------------------------------------------------------------
// Operand shapes
// ---------------------------------------------------------------------------

// binaryResultType implements the binary numeric operations table: int32
// and native int mix to native int, everything else must match.
func binaryResultType(a, b StackSlotType) (StackSlotType, bool) {
	switch {
	case a == b && a != SlotO && a != SlotStruct:
		return a, true
	case (a == SlotI4 && b == SlotI) || (a == SlotI && b == SlotI4):
		return SlotI, true
	}
	return 0, false
}

// widen converts an integer slot to a wider integer shape, sign-extending.
func widen(ctx *ExecutionContext, slot StackSlot, to StackSlotType) StackSlot {
	if slot.Type == to {
		return slot
	}
	factory := ctx.Machine.ValueFactory
	out := factory.Pool().Rent(factory.slotWidth(to, nil), false)
	slot.Contents.ExtendInto(out, true)
	factory.Pool().Return(slot.Contents)
	return StackSlot{Contents: out, Type: to}
}

func popOperands(ctx *ExecutionContext) (a, b StackSlot, t StackSlotType) {
	stack := ctx.CurrentFrame().EvaluationStack
	pool := ctx.Machine.ValueFactory.Pool()
	b = stack.Pop()
	a = stack.Pop()
	t, ok := binaryResultType(a.Type, b.Type)
	if !ok {
		pool.Return(a.Contents)
		pool.Return(b.Contents)
		panic(invalidProgram("incompatible operands %v and %v", a.Type, b.Type))
	}
	return widen(ctx, a, t), widen(ctx, b, t), t
}

// ---------------------------------------------------------------------------
// Arithmetic and logic
// ---------------------------------------------------------------------------

func binaryNumeric(op func(a, b *bitvec.Vector), fop func(x, y float64) float64) FallThrough {
	return func(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
		pool := ctx.Machine.ValueFactory.Pool()
		a, b, t := popOperands(ctx)
		defer pool.Return(b.Contents)

		if t == SlotF {
			if fop == nil {
				pool.Return(a.Contents)
				return DispatchResult{}, invalidProgram("%s is not defined on floats", instr.OpCode.Name)
			}
			if a.Contents.IsFullyKnown() && b.Contents.IsFullyKnown() {
				a.Contents.CopyFrom(bitvec.FromFloat64(fop(a.Contents.Float64(), b.Contents.Float64())))
			} else {
				a.Contents.MarkFullyUnknown()
			}
		} else {
			op(a.Contents, b.Contents)
		}
		ctx.CurrentFrame().EvaluationStack.Push(a)
		return Success(), nil
	}
}

func negHandler(ctx *ExecutionContext, _ *cil.Instruction) (DispatchResult, error) {
	stack := ctx.CurrentFrame().EvaluationStack
	a := stack.PopExpect(SlotI4, SlotI8, SlotI, SlotF)
	if a.Type == SlotF {
		if a.Contents.IsFullyKnown() {
			a.Contents.CopyFrom(bitvec.FromFloat64(-a.Contents.Float64()))
		} else {
			a.Contents.MarkFullyUnknown()
		}
	} else {
		a.Contents.Neg()
	}
	stack.Push(a)
	return Success(), nil
}

func notHandler(ctx *ExecutionContext, _ *cil.Instruction) (DispatchResult, error) {
	stack := ctx.CurrentFrame().EvaluationStack
	a := stack.PopExpect(SlotI4, SlotI8, SlotI)
	a.Contents.Not()
	stack.Push(a)
	return Success(), nil
}

func convHandler(to StackSlotType) FallThrough {
	return func(ctx *ExecutionContext, _ *cil.Instruction) (DispatchResult, error) {
		factory := ctx.Machine.ValueFactory
		stack := ctx.CurrentFrame().EvaluationStack
		a := stack.PopExpect(SlotI4, SlotI8, SlotI, SlotF, SlotO)
		defer factory.Pool().Return(a.Contents)

		out := factory.Pool().Rent(factory.slotWidth(to, nil), false)
		if a.Type == SlotF {
			if x := a.Contents.Float64(); a.Contents.IsFullyKnown() && !math.IsNaN(x) && !math.IsInf(x, 0) {
				out.CopyFrom(bitvec.FromInt64(int64(x), out.Width()))
			}
		} else {
			a.Contents.ExtendInto(out, a.Type != SlotO)
		}
		stack.Push(StackSlot{Contents: out, Type: to})
		return Success(), nil
	}
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

type comparison func(a, b StackSlot) trilean.Trilean

func compareEqual(a, b StackSlot) trilean.Trilean {
	if a.Type == SlotF {
		return floatCompare(a, b, func(x, y float64) bool { return x == y })
	}
	return a.Contents.Equals(b.Contents)
}

func compareGreater(signed bool) comparison {
	return func(a, b StackSlot) trilean.Trilean {
		if a.Type == SlotF {
			return floatCompare(a, b, func(x, y float64) bool {
				return x > y || (!signed && (math.IsNaN(x) || math.IsNaN(y)))
			})
		}
		return a.Contents.GreaterThan(b.Contents, signed)
	}
}

func compareLess(signed bool) comparison {
	return func(a, b StackSlot) trilean.Trilean {
		if a.Type == SlotF {
			return floatCompare(a, b, func(x, y float64) bool {
				return x < y || (!signed && (math.IsNaN(x) || math.IsNaN(y)))
			})
		}
		return a.Contents.LessThan(b.Contents, signed)
	}
}

func floatCompare(a, b StackSlot, cmp func(x, y float64) bool) trilean.Trilean {
	if !a.Contents.IsFullyKnown() || !b.Contents.IsFullyKnown() {
		return trilean.Unknown
	}
	return trilean.FromBool(cmp(a.Contents.Float64(), b.Contents.Float64()))
}

func compareHandler(cmp comparison) FallThrough {
	return func(ctx *ExecutionContext, _ *cil.Instruction) (DispatchResult, error) {
		pool := ctx.Machine.ValueFactory.Pool()
		stack := ctx.CurrentFrame().EvaluationStack

		b := stack.Pop()
		a := stack.Pop()
		if a.Type == SlotO || b.Type == SlotO {
			// References compare as native ints.
			if a.Type == SlotO {
				a.Type = SlotI
			}
			if b.Type == SlotO {
				b.Type = SlotI
			}
		}
		t, ok := binaryResultType(a.Type, b.Type)
		if !ok {
			pool.Return(a.Contents)
			pool.Return(b.Contents)
			panic(invalidProgram("cannot compare %v with %v", a.Type, b.Type))
		}
		a, b = widen(ctx, a, t), widen(ctx, b, t)
		result := cmp(a, b)
		pool.Return(a.Contents)
		pool.Return(b.Contents)

		stack.Push(StackSlot{Contents: trileanValue(ctx, result), Type: SlotI4})
		return Success(), nil
	}
}

// trileanValue encodes a comparison result as an int32 whose lowest bit is
// unknown when the comparison is.
func trileanValue(ctx *ExecutionContext, t trilean.Trilean) *bitvec.Vector {
	v := ctx.Machine.ValueFactory.Pool().Rent(4, true)
	v.SetBit(0, t)
	return v
}
