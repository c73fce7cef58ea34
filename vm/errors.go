package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/cilemu/cil"
)

var (
	// ErrArgumentCount is returned by Call when the number of arguments
	// does not match the method's parameter count.
	ErrArgumentCount = errors.New("vm: argument count mismatch")

	// ErrUnknownValue is returned when a value needed for a decision is
	// not fully known and the unknown resolver refused to concretize it.
	ErrUnknownValue = errors.New("vm: unknown value")

	// ErrExceptionHandlingNotSupported is returned when an instruction
	// raises a managed exception. Unwinding to handler regions is not
	// implemented.
	ErrExceptionHandlingNotSupported = errors.New("vm: exception handling is not supported")

	ErrHeapExhausted          = errors.New("vm: heap exhausted")
	ErrStackOverflow          = errors.New("vm: call stack overflow")
	ErrNoActiveFrame          = errors.New("vm: no method is being executed")
	ErrUnsupportedOpCode      = errors.New("vm: unsupported opcode")
	ErrInconclusiveInvocation = errors.New("vm: no method invoker accepted the call")
)

// InvalidProgramError reports malformed instruction streams: evaluation
// stack underflow, operand type mismatches or bad operands.
type InvalidProgramError struct {
	Instruction *cil.Instruction
	Reason      string
}

func (e *InvalidProgramError) Error() string {
	if e.Instruction == nil {
		return "vm: invalid program: " + e.Reason
	}
	return fmt.Sprintf("vm: invalid program at %v: %s", e.Instruction, e.Reason)
}

func invalidProgram(format string, args ...any) *InvalidProgramError {
	return &InvalidProgramError{Reason: fmt.Sprintf(format, args...)}
}

// UnknownValueError carries the instruction whose operand could not be
// resolved.
type UnknownValueError struct {
	Instruction *cil.Instruction
	What        string
}

func (e *UnknownValueError) Error() string {
	return fmt.Sprintf("vm: unknown %s at %v", e.What, e.Instruction)
}

func (e *UnknownValueError) Unwrap() error {
	return ErrUnknownValue
}
