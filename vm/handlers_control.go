package vm

import (
	"github.com/chazu/cilemu/cil"
	"github.com/chazu/cilemu/pkg/trilean"
)

func branchHandler(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	return Success(), jump(ctx, instr)
}

func jump(ctx *ExecutionContext, instr *cil.Instruction) error {
	frame := ctx.CurrentFrame()
	target, ok := instr.BranchTarget()
	if !ok {
		return invalidProgram("%s has no branch target", instr.OpCode.Name)
	}
	if frame.Body().Instructions.GetByOffset(target) == nil {
		return invalidProgram("branch target IL_%04X is not an instruction boundary", target)
	}
	frame.ProgramCounter = target
	return nil
}

// conditionalBranchHandler builds brtrue (when = true) and brfalse. An
// unknown condition is settled by the machine's UnknownResolver.
func conditionalBranchHandler(when bool) HandlerFunc {
	return func(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
		frame := ctx.CurrentFrame()
		slot := frame.EvaluationStack.PopExpect(SlotI4, SlotI8, SlotI, SlotO)
		defer ctx.Machine.ValueFactory.Pool().Return(slot.Contents)

		var taken bool
		switch slot.Contents.IsNonZero() {
		case trilean.True:
			taken = when
		case trilean.False:
			taken = !when
		default:
			cond, err := ctx.Machine.UnknownResolver.ResolveBranchCondition(ctx, instr, slot)
			if err != nil {
				return DispatchResult{}, err
			}
			taken = cond == when
		}

		if taken {
			return Success(), jump(ctx, instr)
		}
		frame.ProgramCounter += instr.Size()
		return Success(), nil
	}
}

// retHandler pops the current frame and hands its return value, if any, to
// the caller. The caller's program counter was advanced when the call was
// made.
func retHandler(ctx *ExecutionContext, _ *cil.Instruction) (DispatchResult, error) {
	pool := ctx.Machine.ValueFactory.Pool()
	frame := ctx.CurrentFrame()
	method := frame.Method

	var result StackSlot
	if method.Signature.ReturnsValue() {
		v := frame.EvaluationStack.PopTyped(method.ReturnType())
		result = ctx.Machine.ValueFactory.ToCliValue(v, method.ReturnType())
		pool.Return(v)
	}
	if n := frame.EvaluationStack.Count(); n != 0 {
		pool.Return(result.Contents)
		return DispatchResult{}, invalidProgram("%d values left on the evaluation stack at ret", n)
	}
	if _, err := ctx.Machine.CallStack.Pop(); err != nil {
		pool.Return(result.Contents)
		return DispatchResult{}, err
	}
	if result.Contents != nil {
		ctx.CurrentFrame().EvaluationStack.Push(result)
	}
	return Success(), nil
}

func throwHandler(ctx *ExecutionContext, _ *cil.Instruction) (DispatchResult, error) {
	slot := ctx.CurrentFrame().EvaluationStack.PopExpect(SlotO)
	if isNull(slot) {
		ctx.Machine.ValueFactory.Pool().Return(slot.Contents)
		return NullReference(ctx)
	}
	return Failure(slot.Contents), nil
}
