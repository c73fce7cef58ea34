package vm

import (
	"fmt"

	"github.com/chazu/cilemu/cil"
	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

// UnknownResolver concretizes values that are not fully known at points
// where execution must make a decision.
//
// Pointer and method resolvers report ok = false (or a nil method) to
// leave the value unresolved; handlers then proceed conservatively without
// inventing a concrete value.
type UnknownResolver interface {
	ResolveBranchCondition(ctx *ExecutionContext, instr *cil.Instruction, condition StackSlot) (bool, error)
	ResolveDestinationPointer(ctx *ExecutionContext, instr *cil.Instruction, address StackSlot) (addr uint64, ok bool, err error)
	ResolveSourcePointer(ctx *ExecutionContext, instr *cil.Instruction, address StackSlot) (addr uint64, ok bool, err error)
	ResolveMethod(ctx *ExecutionContext, instr *cil.Instruction, method *metadata.MethodDef, args []*bitvec.Vector) (*metadata.MethodDef, error)
}

// ThrowUnknownResolver returns the default resolver, which refuses every
// request with an *UnknownValueError.
func ThrowUnknownResolver() UnknownResolver {
	return throwResolver{}
}

type throwResolver struct{}

func (throwResolver) ResolveBranchCondition(_ *ExecutionContext, instr *cil.Instruction, _ StackSlot) (bool, error) {
	return false, &UnknownValueError{Instruction: instr, What: "branch condition"}
}

func (throwResolver) ResolveDestinationPointer(_ *ExecutionContext, instr *cil.Instruction, _ StackSlot) (uint64, bool, error) {
	return 0, false, &UnknownValueError{Instruction: instr, What: "destination address"}
}

func (throwResolver) ResolveSourcePointer(_ *ExecutionContext, instr *cil.Instruction, _ StackSlot) (uint64, bool, error) {
	return 0, false, &UnknownValueError{Instruction: instr, What: "source address"}
}

func (throwResolver) ResolveMethod(_ *ExecutionContext, instr *cil.Instruction, _ *metadata.MethodDef, _ []*bitvec.Vector) (*metadata.MethodDef, error) {
	return nil, &UnknownValueError{Instruction: instr, What: "receiver"}
}

// ConservativeUnknownResolver returns a resolver that leaves pointers and
// methods unresolved, so writes are skipped, reads yield unknown values and
// calls complete with unknown results. Branch conditions still fail, since
// either choice would be a guess.
func ConservativeUnknownResolver() UnknownResolver {
	return conservativeResolver{}
}

type conservativeResolver struct {
	throwResolver
}

func (conservativeResolver) ResolveDestinationPointer(*ExecutionContext, *cil.Instruction, StackSlot) (uint64, bool, error) {
	return 0, false, nil
}

func (conservativeResolver) ResolveSourcePointer(*ExecutionContext, *cil.Instruction, StackSlot) (uint64, bool, error) {
	return 0, false, nil
}

func (conservativeResolver) ResolveMethod(*ExecutionContext, *cil.Instruction, *metadata.MethodDef, []*bitvec.Vector) (*metadata.MethodDef, error) {
	return nil, nil
}

// ResolverPreset returns a named resolver, as used in machine profiles.
func ResolverPreset(name string) (UnknownResolver, error) {
	switch name {
	case "", "throw":
		return ThrowUnknownResolver(), nil
	case "conservative":
		return ConservativeUnknownResolver(), nil
	}
	return nil, fmt.Errorf("vm: unknown resolver preset %q", name)
}
