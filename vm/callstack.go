package vm

import (
	"fmt"

	"github.com/chazu/cilemu/memory"
	"github.com/chazu/cilemu/metadata"
)

// CallStack is the mapped region interpreted as a stack of frames. The
// bottom frame is a root frame that runs no method; Count includes it.
//
// Each frame reserves a pointer-sized header holding the caller's program
// counter, followed by its arguments and then its locals, each aligned to
// the pointer size.
type CallStack struct {
	*memory.BasicMemory
	factory *ValueFactory
	frames  []*CallFrame
	used    int
}

// NewCallStack creates a call stack region of size bytes.
func NewCallStack(size int, factory *ValueFactory) *CallStack {
	s := &CallStack{
		BasicMemory: memory.NewBasicMemory(size, false),
		factory:     factory,
	}
	s.frames = []*CallFrame{{EvaluationStack: NewEvaluationStack(factory), stack: s}}
	return s
}

// Count returns the number of frames including the root.
func (s *CallStack) Count() int {
	return len(s.frames)
}

// Peek returns the current frame.
func (s *CallStack) Peek() *CallFrame {
	return s.frames[len(s.frames)-1]
}

// Root returns the bottom frame.
func (s *CallStack) Root() *CallFrame {
	return s.frames[0]
}

// Frames returns all frames, root first.
func (s *CallStack) Frames() []*CallFrame {
	return append([]*CallFrame(nil), s.frames...)
}

// Used returns the number of region bytes occupied by frames.
func (s *CallStack) Used() int {
	return s.used
}

// Push allocates a frame for method. Arguments start unknown; locals are
// zeroed when the body requests it and unknown otherwise.
func (s *CallStack) Push(method *metadata.MethodDef) (*CallFrame, error) {
	ptr := s.factory.PointerSize()
	frame := &CallFrame{
		Method:          method,
		EvaluationStack: NewEvaluationStack(s.factory),
		stack:           s,
		offset:          align(s.used, ptr),
	}

	size := ptr
	for _, sig := range method.ParameterTypes() {
		n := s.factory.TypeSize(sig)
		frame.args = append(frame.args, frameSlot{offset: size, size: n, sig: sig})
		size = align(size+n, ptr)
	}
	var initLocals bool
	if body := method.Body; body != nil {
		initLocals = body.InitLocals
		for _, sig := range body.Locals {
			n := s.factory.TypeSize(sig)
			frame.locals = append(frame.locals, frameSlot{offset: size, size: n, sig: sig})
			size = align(size+n, ptr)
		}
	}
	frame.size = size

	if frame.offset+size > s.Size() {
		return nil, fmt.Errorf("%w: pushing %v (%d frames)", ErrStackOverflow, method, len(s.frames))
	}

	caller := s.Peek()
	if err := s.WriteBytes(frame.Address(), s.factory.PointerBytes(uint64(caller.ProgramCounter))); err != nil {
		return nil, err
	}
	if err := s.fill(frame, frame.args, false); err != nil {
		return nil, err
	}
	if err := s.fill(frame, frame.locals, initLocals); err != nil {
		return nil, err
	}

	s.used = frame.offset + size
	s.frames = append(s.frames, frame)
	return frame, nil
}

func (s *CallStack) fill(frame *CallFrame, slots []frameSlot, zero bool) error {
	pool := s.factory.Pool()
	for _, slot := range slots {
		v := pool.Rent(slot.size, zero)
		err := s.Write(frame.Address()+uint64(slot.offset), v)
		pool.Return(v)
		if err != nil {
			return err
		}
	}
	return nil
}

// Pop removes the current frame and releases its evaluation stack. The
// root frame cannot be popped.
func (s *CallStack) Pop() (*CallFrame, error) {
	if len(s.frames) == 1 {
		return nil, fmt.Errorf("%w: cannot pop the root frame", ErrNoActiveFrame)
	}
	top := s.frames[len(s.frames)-1]
	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
	top.EvaluationStack.Clear()
	s.used = top.offset
	return top, nil
}
