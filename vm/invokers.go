package vm

import (
	"fmt"

	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

// ---------------------------------------------------------------------------
// Built-in invokers
// ---------------------------------------------------------------------------

// StepInInvoker emulates every callee that has a body and is inconclusive
// for the rest.
func StepInInvoker() MethodInvoker {
	return InvokerFunc(stepIn)
}

func stepIn(_ *ExecutionContext, method *metadata.MethodDef, _ []*bitvec.Vector) (InvocationResult, error) {
	if method.Body == nil {
		return Inconclusive(), nil
	}
	return StepIn(), nil
}

// ReturnUnknownInvoker steps over every call, producing an unknown value of
// the return type. It is the machine's default.
func ReturnUnknownInvoker() MethodInvoker {
	return returnDefaultInvoker{zero: false}
}

// ReturnDefaultInvoker steps over every call, producing the zero value of
// the return type.
func ReturnDefaultInvoker() MethodInvoker {
	return returnDefaultInvoker{zero: true}
}

type returnDefaultInvoker struct {
	zero bool
}

func (r returnDefaultInvoker) Invoke(ctx *ExecutionContext, method *metadata.MethodDef, _ []*bitvec.Vector) (InvocationResult, error) {
	if !method.Signature.ReturnsValue() {
		return StepOver(nil), nil
	}
	size := ctx.Machine.ValueFactory.TypeSize(method.ReturnType())
	return StepOver(bitvec.New(size, r.zero)), nil
}

// ---------------------------------------------------------------------------
// External methods
// ---------------------------------------------------------------------------

// ExternalMethodInvoker forwards calls to methods defined outside the
// calling method's module to Base and is inconclusive for the rest.
type ExternalMethodInvoker struct {
	Base MethodInvoker
}

// HandleExternalWith returns an invoker that handles external methods with
// base.
func HandleExternalWith(base MethodInvoker) *ExternalMethodInvoker {
	return &ExternalMethodInvoker{Base: base}
}

// ReturnUnknownForExternal steps over external methods with an unknown
// result and is inconclusive for the rest.
func ReturnUnknownForExternal() *ExternalMethodInvoker {
	return HandleExternalWith(ReturnUnknownInvoker())
}

func (e *ExternalMethodInvoker) Invoke(ctx *ExecutionContext, method *metadata.MethodDef, args []*bitvec.Vector) (InvocationResult, error) {
	if !isExternal(ctx, method) {
		return Inconclusive(), nil
	}
	return e.Base.Invoke(ctx, method, args)
}

// isExternal compares the callee's module with that of the calling frame,
// or with the machine's module when nothing is executing.
func isExternal(ctx *ExecutionContext, method *metadata.MethodDef) bool {
	scope := ctx.Machine.Module
	if frame := ctx.CurrentFrame(); !frame.IsRoot() {
		scope = frame.Method.DeclaringType.Module
	}
	return method.DeclaringType.Module != scope
}

// ---------------------------------------------------------------------------
// Shims
// ---------------------------------------------------------------------------

// ShimInvoker multiplexes individual methods to their own invokers and is
// inconclusive for unmapped methods.
type ShimInvoker struct {
	handlers map[*metadata.MethodDef]MethodInvoker
}

// NewShimInvoker creates an empty shim.
func NewShimInvoker() *ShimInvoker {
	return &ShimInvoker{handlers: make(map[*metadata.MethodDef]MethodInvoker)}
}

// Map routes calls to method through invoker.
func (s *ShimInvoker) Map(method *metadata.MethodDef, invoker MethodInvoker) *ShimInvoker {
	s.handlers[method] = invoker
	return s
}

// MapFunc routes calls to method through fn.
func (s *ShimInvoker) MapFunc(method *metadata.MethodDef, fn InvokerFunc) *ShimInvoker {
	return s.Map(method, fn)
}

func (s *ShimInvoker) Invoke(ctx *ExecutionContext, method *metadata.MethodDef, args []*bitvec.Vector) (InvocationResult, error) {
	h, ok := s.handlers[method]
	if !ok {
		return Inconclusive(), nil
	}
	return h.Invoke(ctx, method, args)
}

// ---------------------------------------------------------------------------
// Chains
// ---------------------------------------------------------------------------

// MethodInvokerChain asks each invoker in turn and returns the first
// conclusive result.
type MethodInvokerChain struct {
	Invokers []MethodInvoker
}

// NewInvokerChain creates a chain of invokers.
func NewInvokerChain(invokers ...MethodInvoker) *MethodInvokerChain {
	return &MethodInvokerChain{Invokers: invokers}
}

func (c *MethodInvokerChain) Invoke(ctx *ExecutionContext, method *metadata.MethodDef, args []*bitvec.Vector) (InvocationResult, error) {
	for _, invoker := range c.Invokers {
		result, err := invoker.Invoke(ctx, method, args)
		if err != nil {
			return InvocationResult{}, err
		}
		if result.Kind != InvocationInconclusive {
			return result, nil
		}
	}
	return Inconclusive(), nil
}

// WithFallback returns a chain that consults other when self is
// inconclusive. Chains are extended rather than nested.
func WithFallback(self, other MethodInvoker) *MethodInvokerChain {
	chain, ok := self.(*MethodInvokerChain)
	if !ok {
		chain = NewInvokerChain(self)
	}
	chain.Invokers = append(chain.Invokers, other)
	return chain
}

// WithFallback chains other after e.
func (e *ExternalMethodInvoker) WithFallback(other MethodInvoker) *MethodInvokerChain {
	return WithFallback(e, other)
}

// WithFallback chains other after s.
func (s *ShimInvoker) WithFallback(other MethodInvoker) *MethodInvokerChain {
	return WithFallback(s, other)
}

// WithFallback appends other to the chain.
func (c *MethodInvokerChain) WithFallback(other MethodInvoker) *MethodInvokerChain {
	return WithFallback(c, other)
}

// ---------------------------------------------------------------------------
// Presets
// ---------------------------------------------------------------------------

// InvokerPreset returns a named invocation policy, as used in machine
// profiles.
func InvokerPreset(name string) (MethodInvoker, error) {
	switch name {
	case "", "return-unknown":
		return ReturnUnknownInvoker(), nil
	case "step-in":
		return StepInInvoker(), nil
	case "return-default":
		return ReturnDefaultInvoker(), nil
	case "external-return-unknown":
		return ReturnUnknownForExternal().WithFallback(StepInInvoker()), nil
	}
	return nil, fmt.Errorf("vm: unknown invoker preset %q", name)
}
