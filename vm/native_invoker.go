package vm

import (
	"fmt"
	"reflect"

	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// NativeInvoker steps over calls by running bound Go functions in place of
// the emulated methods. Arguments and results travel through the machine's
// ObjectMarshaller. Calls with partially known arguments are inconclusive.
//
// A binding may return nothing, a value, an error, or a value and an error.
// A panicking binding raises a System.Exception in the emulated program.
type NativeInvoker struct {
	bindings map[*metadata.MethodDef]reflect.Value
}

// NewNativeInvoker binds each method to a Go function. The function takes
// one parameter per method parameter, this included.
func NewNativeInvoker(bindings map[*metadata.MethodDef]any) (*NativeInvoker, error) {
	n := &NativeInvoker{bindings: make(map[*metadata.MethodDef]reflect.Value, len(bindings))}
	for method, fn := range bindings {
		if err := n.Bind(method, fn); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Bind adds or replaces the binding for method.
func (n *NativeInvoker) Bind(method *metadata.MethodDef, fn any) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("vm: binding for %s is %T, not a function", method.FullName(), fn)
	}
	t := v.Type()
	if t.IsVariadic() || t.NumIn() != method.Signature.ParameterCount() {
		return fmt.Errorf("vm: binding for %s takes %d parameters, method has %d",
			method.FullName(), t.NumIn(), method.Signature.ParameterCount())
	}
	if t.NumOut() > 2 || (t.NumOut() == 2 && t.Out(1) != errorType) {
		return fmt.Errorf("vm: binding for %s must return (T), (error) or (T, error)", method.FullName())
	}
	n.bindings[method] = v
	return nil
}

func (n *NativeInvoker) Invoke(ctx *ExecutionContext, method *metadata.MethodDef, args []*bitvec.Vector) (result InvocationResult, err error) {
	fn, ok := n.bindings[method]
	if !ok {
		return Inconclusive(), nil
	}
	for _, arg := range args {
		if !arg.IsFullyKnown() {
			return Inconclusive(), nil
		}
	}

	marshaller := ctx.Machine.Marshaller
	t := fn.Type()
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		obj, err := marshaller.ToObject(arg, t.In(i))
		if err != nil {
			return InvocationResult{}, fmt.Errorf("vm: marshalling argument %d of %s: %w", i, method.FullName(), err)
		}
		if obj == nil {
			in[i] = reflect.Zero(t.In(i))
		} else {
			in[i] = reflect.ValueOf(obj)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			ctx.Machine.log.Debugf("native %s panicked: %v", method.FullName(), r)
			var failure DispatchResult
			if failure, err = raise(ctx, ctx.Machine.Module.CorLib.Exception); err == nil {
				result = Raised(failure.ExceptionPointer())
			}
		}
	}()
	out := fn.Call(in)

	if len(out) > 0 && t.Out(len(out)-1) == errorType {
		if e, _ := out[len(out)-1].Interface().(error); e != nil {
			return InvocationResult{}, fmt.Errorf("vm: native %s: %w", method.FullName(), e)
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 || !method.Signature.ReturnsValue() {
		return StepOver(nil), nil
	}

	v, err := marshaller.ToBitVector(out[0].Interface())
	if err != nil {
		return InvocationResult{}, fmt.Errorf("vm: marshalling result of %s: %w", method.FullName(), err)
	}
	factory := ctx.Machine.ValueFactory
	normalized := factory.Normalize(v, method.ReturnType())
	defer factory.Pool().Return(normalized)
	return StepOver(normalized.Clone()), nil
}
