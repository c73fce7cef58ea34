package vm

import (
	"fmt"

	"github.com/chazu/cilemu/cil"
	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

// devirtualizer picks the method a call instruction actually targets.
type devirtualizer func(ctx *ExecutionContext, instr *cil.Instruction, method *metadata.MethodDef, args []*bitvec.Vector) (MethodDevirtualizationResult, error)

// callHandler implements call, callvirt and newobj. Arguments are popped,
// the target is devirtualized, and the machine's MethodInvoker decides
// whether to step into the callee or complete the call in place.
type callHandler struct {
	devirtualize devirtualizer
	newObject    bool
}

func (h *callHandler) Dispatch(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	method, ok := instr.Operand.(*metadata.MethodDef)
	if !ok {
		panic(invalidProgram("%s operand %T is not a method", instr.OpCode.Name, instr.Operand))
	}
	factory := ctx.Machine.ValueFactory
	pool := factory.Pool()
	caller := ctx.CurrentFrame()

	if h.newObject && (method.IsStatic() || !method.IsConstructor()) {
		return DispatchResult{}, invalidProgram("newobj target %v is not an instance constructor", method)
	}
	if h.newObject && method.DeclaringType.IsValueType {
		return DispatchResult{}, fmt.Errorf("%w: newobj of value type %v", ErrUnsupportedOpCode, method.DeclaringType)
	}

	params := method.ParameterTypes()
	args := make([]*bitvec.Vector, len(params))
	defer func() {
		for _, arg := range args {
			pool.Return(arg)
		}
	}()
	first := 0
	if h.newObject {
		first = 1
	}
	for i := len(params) - 1; i >= first; i-- {
		args[i] = caller.EvaluationStack.PopTyped(params[i])
	}

	var object uint64
	if h.newObject {
		addr, err := ctx.Machine.Heap.AllocateObject(method.DeclaringType, true)
		if err != nil {
			return DispatchResult{}, err
		}
		object = addr
		args[0] = factory.CreateNativeInteger(addr)
	}

	devirtualized, err := h.devirtualize(ctx, instr, method, args)
	if err != nil {
		return DispatchResult{}, err
	}
	if devirtualized.IsException() {
		return Failure(devirtualized.Exception), nil
	}
	target := devirtualized.Method
	if devirtualized.IsUnknown() {
		if target, err = ctx.Machine.UnknownResolver.ResolveMethod(ctx, instr, method, args); err != nil {
			return DispatchResult{}, err
		}
		if target == nil {
			h.completeIndeterminate(ctx, caller, instr, method)
			return Success(), nil
		}
	}

	result, err := ctx.Machine.Invoker.Invoke(ctx, target, args)
	if err != nil {
		return DispatchResult{}, err
	}

	switch result.Kind {
	case InvocationStepIn:
		callee, err := ctx.Machine.CallStack.Push(target)
		if err != nil {
			return DispatchResult{}, err
		}
		for i, arg := range args {
			if err := callee.WriteArgument(i, arg); err != nil {
				ctx.Machine.CallStack.Pop()
				return DispatchResult{}, err
			}
		}
		caller.ProgramCounter += instr.Size()
		if h.newObject {
			caller.EvaluationStack.Push(StackSlot{Contents: factory.CreateNativeInteger(object), Type: SlotO})
		}
		return Success(), nil

	case InvocationStepOver:
		caller.ProgramCounter += instr.Size()
		switch {
		case h.newObject:
			caller.EvaluationStack.Push(StackSlot{Contents: factory.CreateNativeInteger(object), Type: SlotO})
		case target.Signature.ReturnsValue():
			ret := target.ReturnType()
			if result.Value == nil {
				caller.EvaluationStack.Push(factory.UnknownSlot(ret))
			} else {
				caller.EvaluationStack.PushValue(result.Value, ret)
			}
		}
		return Success(), nil

	case InvocationException:
		return Failure(result.Exception), nil
	}

	return DispatchResult{}, fmt.Errorf("%w: %s", ErrInconclusiveInvocation, target.FullName())
}

// completeIndeterminate finishes a call whose target could not be
// determined: the return value, if any, is unknown.
func (h *callHandler) completeIndeterminate(ctx *ExecutionContext, caller *CallFrame, instr *cil.Instruction, method *metadata.MethodDef) {
	caller.ProgramCounter += instr.Size()
	if method.Signature.ReturnsValue() {
		caller.EvaluationStack.Push(ctx.Machine.ValueFactory.UnknownSlot(method.ReturnType()))
	}
	ctx.Machine.log.Debugf("call to %s at %v left indeterminate", method.FullName(), instr)
}
