package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/cilemu/cil"
	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

// ---------------------------------------------------------------------------
// Execution context and dispatch results
// ---------------------------------------------------------------------------

// ExecutionContext is passed to every handler and policy.
type ExecutionContext struct {
	Machine *Machine
	Context context.Context
}

// CurrentFrame returns the frame being executed.
func (c *ExecutionContext) CurrentFrame() *CallFrame {
	return c.Machine.CallStack.Peek()
}

// DispatchResult is the outcome of one instruction: success, or failure
// carrying a pointer to the raised exception object.
type DispatchResult struct {
	exception *bitvec.Vector
}

// Success is the result of an instruction that completed normally.
func Success() DispatchResult {
	return DispatchResult{}
}

// Failure is the result of an instruction that raised the exception at
// pointer. The result takes ownership of pointer.
func Failure(pointer *bitvec.Vector) DispatchResult {
	return DispatchResult{exception: pointer}
}

// IsSuccess reports whether the instruction completed normally.
func (r DispatchResult) IsSuccess() bool {
	return r.exception == nil
}

// ExceptionPointer returns the exception pointer of a failed result.
func (r DispatchResult) ExceptionPointer() *bitvec.Vector {
	return r.exception
}

// NullReference allocates a NullReferenceException and fails with it.
func NullReference(ctx *ExecutionContext) (DispatchResult, error) {
	return raise(ctx, ctx.Machine.Module.CorLib.NullReferenceException)
}

func raise(ctx *ExecutionContext, t *metadata.TypeDef) (DispatchResult, error) {
	addr, err := ctx.Machine.Heap.AllocateObject(t, true)
	if err != nil {
		return DispatchResult{}, err
	}
	return Failure(ctx.Machine.ValueFactory.CreateNativeInteger(addr)), nil
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// OpCodeHandler executes one kind of instruction.
type OpCodeHandler interface {
	Dispatch(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error)
}

// HandlerFunc adapts a function to OpCodeHandler. The function controls the
// program counter itself.
type HandlerFunc func(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error)

func (f HandlerFunc) Dispatch(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	return f(ctx, instr)
}

// FallThrough adapts a function for instructions that continue with the
// next instruction: the program counter advances past instr on success.
type FallThrough func(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error)

func (f FallThrough) Dispatch(ctx *ExecutionContext, instr *cil.Instruction) (DispatchResult, error) {
	frame := ctx.CurrentFrame()
	result, err := f(ctx, instr)
	if err == nil && result.IsSuccess() {
		frame.ProgramCounter += instr.Size()
	}
	return result, err
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Dispatcher routes instructions to handlers through two 256-entry tables,
// one for single-byte opcodes and one for 0xFE-prefixed opcodes.
type Dispatcher struct {
	oneByte [256]OpCodeHandler
	twoByte [256]OpCodeHandler
}

// NewDispatcher creates a dispatcher with the built-in handler set.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{}
	for code, h := range builtinHandlers() {
		d.Register(code, h)
	}
	return d
}

// Register installs or replaces the handler for code.
func (d *Dispatcher) Register(code cil.Code, h OpCodeHandler) {
	if code > 0xFF {
		d.twoByte[code&0xFF] = h
		return
	}
	d.oneByte[code] = h
}

// Lookup returns the handler for code.
func (d *Dispatcher) Lookup(code cil.Code) (OpCodeHandler, bool) {
	var h OpCodeHandler
	if code > 0xFF {
		h = d.twoByte[code&0xFF]
	} else {
		h = d.oneByte[code]
	}
	return h, h != nil
}

// Dispatch executes instr. Malformed programs surface as
// *InvalidProgramError.
func (d *Dispatcher) Dispatch(ctx *ExecutionContext, instr *cil.Instruction) (result DispatchResult, err error) {
	h, ok := d.Lookup(instr.OpCode.Code)
	if !ok {
		return DispatchResult{}, fmt.Errorf("%w: %s", ErrUnsupportedOpCode, instr.OpCode.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			ip, ok := r.(*InvalidProgramError)
			if !ok {
				panic(r)
			}
			ip.Instruction = instr
			result, err = DispatchResult{}, ip
		}
	}()
	result, err = h.Dispatch(ctx, instr)
	var ip *InvalidProgramError
	if errors.As(err, &ip) && ip.Instruction == nil {
		ip.Instruction = instr
	}
	return result, err
}

// builtinHandlers is the declarative opcode table.
func builtinHandlers() map[cil.Code]OpCodeHandler {
	handlers := map[cil.Code]OpCodeHandler{
		cil.Nop:      FallThrough(nopHandler),
		cil.Dup:      FallThrough(dupHandler),
		cil.Pop:      FallThrough(popHandler),
		cil.Call:     &callHandler{devirtualize: devirtualizeDirect},
		cil.Callvirt: &callHandler{devirtualize: devirtualizeVirtual},
		cil.Newobj:   &callHandler{devirtualize: devirtualizeDirect, newObject: true},
		cil.Ret:      HandlerFunc(retHandler),
		cil.Br:       HandlerFunc(branchHandler),
		cil.Brtrue:   HandlerFunc(conditionalBranchHandler(true)),
		cil.Brfalse:  HandlerFunc(conditionalBranchHandler(false)),
		cil.Throw:    HandlerFunc(throwHandler),
	}
	for code, h := range constantHandlers() {
		handlers[code] = h
	}
	for code, h := range variableHandlers() {
		handlers[code] = h
	}
	for code, h := range arithmeticHandlers() {
		handlers[code] = h
	}
	for code, h := range objectHandlers() {
		handlers[code] = h
	}
	for code, h := range pointerHandlers() {
		handlers[code] = h
	}
	return handlers
}

func nopHandler(*ExecutionContext, *cil.Instruction) (DispatchResult, error) {
	return Success(), nil
}

func dupHandler(ctx *ExecutionContext, _ *cil.Instruction) (DispatchResult, error) {
	stack := ctx.CurrentFrame().EvaluationStack
	top, ok := stack.Peek()
	if !ok {
		panic(invalidProgram("evaluation stack underflow"))
	}
	stack.Push(StackSlot{Contents: ctx.Machine.ValueFactory.Pool().RentCopy(top.Contents), Type: top.Type})
	return Success(), nil
}

func popHandler(ctx *ExecutionContext, _ *cil.Instruction) (DispatchResult, error) {
	slot := ctx.CurrentFrame().EvaluationStack.Pop()
	ctx.Machine.ValueFactory.Pool().Return(slot.Contents)
	return Success(), nil
}
