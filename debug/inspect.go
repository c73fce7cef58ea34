package debug

import (
	"fmt"

	"github.com/chazu/cilemu/pkg/bitvec"
	"github.com/chazu/cilemu/vm"
)

// StackFrame is a call-stack entry. ID indexes frames from the root, which
// is never reported.
type StackFrame struct {
	ID     int    `cbor:"1,keyasint"`
	Method string `cbor:"2,keyasint"`
	Offset int    `cbor:"3,keyasint"`
}

// Variable is a rendered argument, local or evaluation-stack slot. Unknown
// nibbles of Value print as '?'.
type Variable struct {
	Name  string `cbor:"1,keyasint"`
	Type  string `cbor:"2,keyasint"`
	Value string `cbor:"3,keyasint"`
}

// CallStack returns the active frames, innermost first.
func (d *Debugger) CallStack() []StackFrame {
	frames := d.machine.CallStack.Frames()
	result := make([]StackFrame, 0, len(frames)-1)
	for i := len(frames) - 1; i > 0; i-- {
		result = append(result, StackFrame{
			ID:     i,
			Method: frames[i].Method.FullName(),
			Offset: frames[i].ProgramCounter,
		})
	}
	return result
}

func (d *Debugger) frame(id int) (*vm.CallFrame, error) {
	frames := d.machine.CallStack.Frames()
	if id <= 0 || id >= len(frames) {
		return nil, fmt.Errorf("debug: no frame %d (%d active)", id, len(frames)-1)
	}
	return frames[id], nil
}

// Variables returns the arguments and locals of a frame. Arguments are
// named arg0..argN, with "this" for the receiver of an instance method.
func (d *Debugger) Variables(frameID int) ([]Variable, error) {
	frame, err := d.frame(frameID)
	if err != nil {
		return nil, err
	}
	pool := d.machine.ValueFactory.Pool()

	var vars []Variable
	hasThis := frame.Method.Signature.HasThis
	for i := 0; i < frame.ArgumentCount(); i++ {
		name := fmt.Sprintf("arg%d", i)
		if hasThis {
			if i == 0 {
				name = "this"
			} else {
				name = fmt.Sprintf("arg%d", i-1)
			}
		}
		v, err := frame.ReadArgument(i)
		if err != nil {
			return nil, err
		}
		vars = append(vars, Variable{Name: name, Type: frame.ArgumentType(i).String(), Value: v.String()})
		pool.Return(v)
	}
	for i := 0; i < frame.LocalCount(); i++ {
		v, err := frame.ReadLocal(i)
		if err != nil {
			return nil, err
		}
		vars = append(vars, Variable{Name: fmt.Sprintf("loc%d", i), Type: frame.LocalType(i).String(), Value: v.String()})
		pool.Return(v)
	}
	return vars, nil
}

// EvaluationStack returns a frame's evaluation stack, bottom first.
func (d *Debugger) EvaluationStack(frameID int) ([]Variable, error) {
	frame, err := d.frame(frameID)
	if err != nil {
		return nil, err
	}
	slots := frame.EvaluationStack.Slots()
	vars := make([]Variable, len(slots))
	for i, slot := range slots {
		vars[i] = Variable{
			Name:  fmt.Sprintf("stack%d", i),
			Type:  slot.Type.String(),
			Value: slot.Contents.String(),
		}
	}
	return vars, nil
}

// ReadMemory copies n bytes at addr. The result is unpooled.
func (d *Debugger) ReadMemory(addr uint64, n int) (*bitvec.Vector, error) {
	v := bitvec.New(n, false)
	if err := d.machine.Memory.Read(addr, v); err != nil {
		return nil, err
	}
	return v, nil
}
