package vm

import (
	"github.com/chazu/cilemu/cil"
	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
	"github.com/chazu/cilemu/pkg/trilean"
)

// ---------------------------------------------------------------------------
// Devirtualization results
// ---------------------------------------------------------------------------

// MethodDevirtualizationResult is the method a call instruction resolved
// to: a concrete method, an exception, or unknown when the receiver is not
// fully known.
type MethodDevirtualizationResult struct {
	Method    *metadata.MethodDef
	Exception *bitvec.Vector
}

// DevirtualizedMethod is a successful resolution.
func DevirtualizedMethod(m *metadata.MethodDef) MethodDevirtualizationResult {
	return MethodDevirtualizationResult{Method: m}
}

// DevirtualizedException is a resolution that raised the exception at
// pointer.
func DevirtualizedException(pointer *bitvec.Vector) MethodDevirtualizationResult {
	return MethodDevirtualizationResult{Exception: pointer}
}

// DevirtualizedUnknown is a resolution that could not be made.
func DevirtualizedUnknown() MethodDevirtualizationResult {
	return MethodDevirtualizationResult{}
}

func (r MethodDevirtualizationResult) IsUnknown() bool   { return r.Method == nil && r.Exception == nil }
func (r MethodDevirtualizationResult) IsException() bool { return r.Exception != nil }
func (r MethodDevirtualizationResult) IsSuccess() bool   { return r.Method != nil }

// ---------------------------------------------------------------------------
// Implementation lookup
// ---------------------------------------------------------------------------

// FindMethodImplementation returns the method that implements base for
// objects of runtime type t, walking from t towards base's declaring type.
// Explicit implementations win over name and signature matches. Returns nil
// when nothing implements an abstract base.
func FindMethodImplementation(t *metadata.TypeDef, base *metadata.MethodDef) *metadata.MethodDef {
	if !base.IsVirtual() {
		return base
	}

	declaring := base.DeclaringType
	var impl *metadata.MethodDef
	for cur := t; cur != nil && cur != declaring; cur = cur.BaseType {
		if declaring.IsInterface {
			for _, mi := range cur.MethodImpls {
				if mi.Declaration == base {
					impl = mi.Body
					break
				}
			}
		}
		if impl == nil {
			impl = findOverride(cur, base)
		}
		if impl != nil {
			break
		}
	}

	if impl == nil && !base.IsAbstract() {
		impl = base
	}
	return impl
}

// findOverride finds a virtual method of t with base's name and signature.
// Class overrides must reuse the slot; interface members may be implemented
// by any virtual method.
func findOverride(t *metadata.TypeDef, base *metadata.MethodDef) *metadata.MethodDef {
	for _, m := range t.Methods {
		if !m.IsVirtual() || m.Name != base.Name {
			continue
		}
		if !base.DeclaringType.IsInterface && !m.IsReuseSlot() {
			continue
		}
		if m.Signature.Equal(base.Signature) {
			return m
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Devirtualization strategies
// ---------------------------------------------------------------------------

// devirtualizeDirect is used by call and newobj: the operand is the target.
func devirtualizeDirect(_ *ExecutionContext, _ *cil.Instruction, method *metadata.MethodDef, _ []*bitvec.Vector) (MethodDevirtualizationResult, error) {
	return DevirtualizedMethod(method), nil
}

// devirtualizeVirtual is used by callvirt: the receiver is null-checked and
// its runtime type selects the implementation.
func devirtualizeVirtual(ctx *ExecutionContext, instr *cil.Instruction, method *metadata.MethodDef, args []*bitvec.Vector) (MethodDevirtualizationResult, error) {
	if !method.Signature.HasThis || len(args) == 0 {
		return DevirtualizedMethod(method), nil
	}
	this := args[0]
	if this.IsZero() == trilean.True {
		result, err := NullReference(ctx)
		if err != nil {
			return MethodDevirtualizationResult{}, err
		}
		return DevirtualizedException(result.ExceptionPointer()), nil
	}
	if method.DeclaringType.IsValueType {
		// this is a managed pointer to the value; there is nothing to
		// dispatch on.
		return DevirtualizedMethod(method), nil
	}
	if !this.IsFullyKnown() {
		return DevirtualizedUnknown(), nil
	}
	return ctx.Machine.Devirtualize(ctx, instr, method, this.Uint64())
}

// Devirtualize resolves method against the runtime type of the object at
// receiver, consulting and filling the call site's inline cache. A missing
// implementation raises MissingMethodException.
func (m *Machine) Devirtualize(ctx *ExecutionContext, instr *cil.Instruction, method *metadata.MethodDef, receiver uint64) (MethodDevirtualizationResult, error) {
	runtimeType, err := m.Handle(receiver).ObjectTypeDef()
	if err != nil {
		return MethodDevirtualizationResult{}, err
	}

	var cache *InlineCache
	if frame := ctx.CurrentFrame(); !frame.IsRoot() && instr != nil {
		cache = m.CallSiteCaches.GetOrCreate(CallSite{Method: frame.Method, Offset: instr.Offset})
		if impl := cache.Lookup(runtimeType); impl != nil {
			return DevirtualizedMethod(impl), nil
		}
	}

	impl := FindMethodImplementation(runtimeType, method)
	if impl == nil {
		m.log.Debugf("no implementation of %s in %s", method.FullName(), runtimeType.FullName())
		result, err := raise(ctx, m.Module.CorLib.MissingMethodException)
		if err != nil {
			return MethodDevirtualizationResult{}, err
		}
		return DevirtualizedException(result.ExceptionPointer()), nil
	}
	if cache != nil {
		cache.Update(runtimeType, impl)
	}
	return DevirtualizedMethod(impl), nil
}
