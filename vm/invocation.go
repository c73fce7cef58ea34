package vm

import (
	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

// ---------------------------------------------------------------------------
// Invocation results
// ---------------------------------------------------------------------------

// InvocationKind says how a call instruction should proceed.
type InvocationKind uint8

const (
	// InvocationInconclusive means the invoker did not handle the call.
	InvocationInconclusive InvocationKind = iota
	// InvocationStepIn means the callee's body should be emulated.
	InvocationStepIn
	// InvocationStepOver means the invoker produced the return value.
	InvocationStepOver
	// InvocationException means the call raised an exception.
	InvocationException
)

var invocationKindNames = [...]string{"inconclusive", "step-in", "step-over", "exception"}

func (k InvocationKind) String() string {
	if int(k) < len(invocationKindNames) {
		return invocationKindNames[k]
	}
	return "invalid"
}

// InvocationResult is what a MethodInvoker decided for one call.
type InvocationResult struct {
	Kind InvocationKind

	// Value is the return value of a step-over in its memory form, nil for
	// void methods. It is owned by the result and never pooled.
	Value *bitvec.Vector

	// Exception points at the raised exception object.
	Exception *bitvec.Vector
}

// Inconclusive leaves the call to the next invoker.
func Inconclusive() InvocationResult {
	return InvocationResult{Kind: InvocationInconclusive}
}

// StepIn requests emulation of the callee's body.
func StepIn() InvocationResult {
	return InvocationResult{Kind: InvocationStepIn}
}

// StepOver completes the call with value, which may be nil for void
// methods.
func StepOver(value *bitvec.Vector) InvocationResult {
	return InvocationResult{Kind: InvocationStepOver, Value: value}
}

// Raised completes the call by raising the exception at
// pointer.
func Raised(pointer *bitvec.Vector) InvocationResult {
	return InvocationResult{Kind: InvocationException, Exception: pointer}
}

// IsSuccess reports whether the call completes without an exception.
func (r InvocationResult) IsSuccess() bool {
	return r.Kind == InvocationStepIn || r.Kind == InvocationStepOver
}

// ---------------------------------------------------------------------------
// MethodInvoker
// ---------------------------------------------------------------------------

// MethodInvoker decides what happens when emulated code calls a method.
// args are in memory form, this first for instance methods; they belong to
// the caller and must not be retained.
type MethodInvoker interface {
	Invoke(ctx *ExecutionContext, method *metadata.MethodDef, args []*bitvec.Vector) (InvocationResult, error)
}

// InvokerFunc adapts a function to MethodInvoker.
type InvokerFunc func(ctx *ExecutionContext, method *metadata.MethodDef, args []*bitvec.Vector) (InvocationResult, error)

func (f InvokerFunc) Invoke(ctx *ExecutionContext, method *metadata.MethodDef, args []*bitvec.Vector) (InvocationResult, error) {
	return f(ctx, method, args)
}
