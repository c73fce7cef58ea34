package vm

import (
	"fmt"
	"reflect"

	"github.com/chazu/cilemu/pkg/bitvec"
)

// ObjectMarshaller converts between Go values and emulated values.
type ObjectMarshaller interface {
	// ToBitVector returns an unpooled vector representing obj.
	ToBitVector(obj any) (*bitvec.Vector, error)
	// ToObject converts v to a Go value assignable to t.
	ToObject(v *bitvec.Vector, t reflect.Type) (any, error)
}

var (
	handleType = reflect.TypeOf(ObjectHandle{})
	vectorType = reflect.TypeOf((*bitvec.Vector)(nil))
)

// DefaultMarshaller maps Go primitives to their CLI counterparts, strings to
// heap strings, and every other Go value to an opaque address in the
// object-map region.
type DefaultMarshaller struct {
	Machine *Machine
}

// NewObjectMarshaller returns the default marshaller for m.
func NewObjectMarshaller(m *Machine) *DefaultMarshaller {
	return &DefaultMarshaller{Machine: m}
}

func (d *DefaultMarshaller) ToBitVector(obj any) (*bitvec.Vector, error) {
	switch v := obj.(type) {
	case nil:
		return d.pointer(0), nil
	case bool:
		return bitvec.FromBool(v), nil
	case int8:
		return bitvec.FromInt64(int64(v), 1), nil
	case uint8:
		return bitvec.FromUint64(uint64(v), 1), nil
	case int16:
		return bitvec.FromInt64(int64(v), 2), nil
	case uint16:
		return bitvec.FromUint64(uint64(v), 2), nil
	case int32:
		return bitvec.FromInt32(v), nil
	case uint32:
		return bitvec.FromUint64(uint64(v), 4), nil
	case int64:
		return bitvec.FromInt64(v, 8), nil
	case uint64:
		return bitvec.FromUint64(v, 8), nil
	case int:
		return bitvec.FromInt64(int64(v), 8), nil
	case uint:
		return bitvec.FromUint64(uint64(v), 8), nil
	case uintptr:
		return d.pointer(uint64(v)), nil
	case float32:
		return bitvec.FromFloat32(v), nil
	case float64:
		return bitvec.FromFloat64(v), nil
	case string:
		addr, err := d.Machine.Heap.AllocateString(v)
		if err != nil {
			return nil, err
		}
		return d.pointer(addr), nil
	case ObjectHandle:
		return d.pointer(v.Address), nil
	case *bitvec.Vector:
		return v.Clone(), nil
	case *StructValue:
		return v.Encode(), nil
	}

	addr, err := d.Machine.ObjectMap.GetOrCreateAddress(obj)
	if err != nil {
		return nil, err
	}
	return d.pointer(addr), nil
}

func (d *DefaultMarshaller) ToObject(v *bitvec.Vector, t reflect.Type) (any, error) {
	switch t {
	case vectorType:
		return v.Clone(), nil
	case handleType:
		return d.Machine.Handle(v.Uint64()), nil
	}
	if !v.IsFullyKnown() {
		return nil, fmt.Errorf("%w: cannot marshal %v to %v", ErrUnknownValue, v, t)
	}

	switch t.Kind() {
	case reflect.Bool:
		return reflect.ValueOf(v.Uint64() != 0).Convert(t).Interface(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return reflect.ValueOf(v.Int64()).Convert(t).Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return reflect.ValueOf(v.Uint64()).Convert(t).Interface(), nil
	case reflect.Float32, reflect.Float64:
		if v.Width() == 4 {
			return reflect.ValueOf(v.Float32()).Convert(t).Interface(), nil
		}
		return reflect.ValueOf(v.Float64()).Convert(t).Interface(), nil
	case reflect.String:
		addr := v.Uint64()
		if addr == 0 {
			return reflect.Zero(t).Interface(), nil
		}
		s, err := d.Machine.Handle(addr).ReadString()
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(s).Convert(t).Interface(), nil
	}

	addr := v.Uint64()
	if addr == 0 {
		return reflect.Zero(t).Interface(), nil
	}
	if obj, ok := d.Machine.ObjectMap.TryGetObject(addr); ok {
		if obj == nil || reflect.TypeOf(obj).AssignableTo(t) {
			return obj, nil
		}
		return nil, fmt.Errorf("vm: object at %#x is %T, not %v", addr, obj, t)
	}
	if handleType.AssignableTo(t) {
		return d.Machine.Handle(addr), nil
	}
	return nil, fmt.Errorf("vm: cannot marshal %#x to %v", addr, t)
}

func (d *DefaultMarshaller) pointer(addr uint64) *bitvec.Vector {
	return bitvec.FromUint64(addr, d.Machine.PointerSize())
}

// MarshalAs converts v to a Go value of type T.
func MarshalAs[T any](m ObjectMarshaller, v *bitvec.Vector) (T, error) {
	var zero T
	obj, err := m.ToObject(v, reflect.TypeOf((*T)(nil)).Elem())
	if err != nil || obj == nil {
		return zero, err
	}
	return obj.(T), nil
}

// MarshalHandleAs converts the object h refers to into a Go value of type T.
func MarshalHandleAs[T any](m ObjectMarshaller, h ObjectHandle) (T, error) {
	return MarshalAs[T](m, bitvec.FromUint64(h.Address, h.Machine.PointerSize()))
}
