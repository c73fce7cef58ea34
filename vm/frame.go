package vm

import (
	"fmt"

	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

// frameSlot is an argument or local variable stored in the call-stack
// region.
type frameSlot struct {
	offset int
	size   int
	sig    *metadata.TypeSig
}

// CallFrame is one activation record. Its argument and local slots live
// inside the call-stack region, so ldarga/ldloca yield real addresses.
type CallFrame struct {
	Method          *metadata.MethodDef
	ProgramCounter  int
	EvaluationStack *EvaluationStack

	stack  *CallStack
	offset int // start of the frame within the region
	size   int
	args   []frameSlot
	locals []frameSlot
}

// IsRoot reports whether this is the bottom frame, which runs no method.
func (f *CallFrame) IsRoot() bool {
	return f.Method == nil
}

// Body returns the method body, or nil.
func (f *CallFrame) Body() *metadata.MethodBody {
	if f.Method == nil {
		return nil
	}
	return f.Method.Body
}

// Address returns the absolute address of the frame's first byte.
func (f *CallFrame) Address() uint64 {
	return f.stack.AddressRange().Start + uint64(f.offset)
}

// Size returns the number of bytes the frame occupies in the region.
func (f *CallFrame) Size() int {
	return f.size
}

func (f *CallFrame) ArgumentCount() int { return len(f.args) }
func (f *CallFrame) LocalCount() int    { return len(f.locals) }

// ArgumentType returns the declared type of argument i.
func (f *CallFrame) ArgumentType(i int) *metadata.TypeSig {
	return f.args[i].sig
}

// LocalType returns the declared type of local i.
func (f *CallFrame) LocalType(i int) *metadata.TypeSig {
	return f.locals[i].sig
}

// ArgumentAddress returns the address of argument i.
func (f *CallFrame) ArgumentAddress(i int) (uint64, error) {
	slot, err := f.slot(f.args, "argument", i)
	if err != nil {
		return 0, err
	}
	return f.Address() + uint64(slot.offset), nil
}

// LocalAddress returns the address of local i.
func (f *CallFrame) LocalAddress(i int) (uint64, error) {
	slot, err := f.slot(f.locals, "local", i)
	if err != nil {
		return 0, err
	}
	return f.Address() + uint64(slot.offset), nil
}

// ReadArgument reads argument i into a rented vector owned by the caller.
func (f *CallFrame) ReadArgument(i int) (*bitvec.Vector, error) {
	return f.read(f.args, "argument", i)
}

// WriteArgument stores value into argument i, converting it to the
// argument's declared width. value is not consumed.
func (f *CallFrame) WriteArgument(i int, value *bitvec.Vector) error {
	return f.write(f.args, "argument", i, value)
}

// ReadLocal reads local i into a rented vector owned by the caller.
func (f *CallFrame) ReadLocal(i int) (*bitvec.Vector, error) {
	return f.read(f.locals, "local", i)
}

// WriteLocal stores value into local i. value is not consumed.
func (f *CallFrame) WriteLocal(i int, value *bitvec.Vector) error {
	return f.write(f.locals, "local", i, value)
}

func (f *CallFrame) slot(slots []frameSlot, kind string, i int) (frameSlot, error) {
	if i < 0 || i >= len(slots) {
		return frameSlot{}, invalidProgram("%s index %d out of range in %v", kind, i, f)
	}
	return slots[i], nil
}

func (f *CallFrame) read(slots []frameSlot, kind string, i int) (*bitvec.Vector, error) {
	slot, err := f.slot(slots, kind, i)
	if err != nil {
		return nil, err
	}
	v := f.stack.factory.Pool().Rent(slot.size, false)
	if err := f.stack.Read(f.Address()+uint64(slot.offset), v); err != nil {
		f.stack.factory.Pool().Return(v)
		return nil, err
	}
	return v, nil
}

func (f *CallFrame) write(slots []frameSlot, kind string, i int, value *bitvec.Vector) error {
	slot, err := f.slot(slots, kind, i)
	if err != nil {
		return err
	}
	addr := f.Address() + uint64(slot.offset)
	if value.Width() == slot.size {
		return f.stack.Write(addr, value)
	}
	normalized := f.stack.factory.Normalize(value, slot.sig)
	defer f.stack.factory.Pool().Return(normalized)
	return f.stack.Write(addr, normalized)
}

func (f *CallFrame) String() string {
	if f.IsRoot() {
		return "<root>"
	}
	return fmt.Sprintf("%v+IL_%04X", f.Method, f.ProgramCounter)
}
