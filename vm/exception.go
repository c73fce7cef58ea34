package vm

import (
	"fmt"

	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

// ---------------------------------------------------------------------------
// Unhandled managed exceptions
// ---------------------------------------------------------------------------

// UnhandledExceptionError is returned by Step when an instruction raises a
// managed exception. The machine does not unwind: the faulting frame stays
// on the call stack with its program counter at the faulting instruction.
type UnhandledExceptionError struct {
	// Type is the runtime type of the exception object, nil when the
	// exception pointer is not fully known.
	Type *metadata.TypeDef

	// Pointer is an unpooled copy of the exception object pointer.
	Pointer *bitvec.Vector

	Frame *CallFrame

	// Handler is the region that would catch the exception, if the
	// machine's HandlerRegionFinder found one.
	Handler *metadata.ExceptionHandler
}

func (e *UnhandledExceptionError) Error() string {
	what := "not implemented (unknown exception type)"
	if e.Type != nil {
		what = fmt.Sprintf("not implemented (exception type %s)", e.Type.FullName())
	}
	if e.Handler != nil {
		return fmt.Sprintf("vm: exception handling %s at %v (handler at IL_%04X)", what, e.Frame, e.Handler.HandlerStart)
	}
	return fmt.Sprintf("vm: exception handling %s at %v", what, e.Frame)
}

func (e *UnhandledExceptionError) Unwrap() error {
	return ErrExceptionHandlingNotSupported
}

// ---------------------------------------------------------------------------
// Handler regions
// ---------------------------------------------------------------------------

// HandlerRegionFinder locates the exception handler region that protects
// the frame's current instruction and accepts an exception of type t (nil
// when the type is unknown).
type HandlerRegionFinder interface {
	FindHandler(frame *CallFrame, t *metadata.TypeDef) (*metadata.ExceptionHandler, bool)
}

// HandlerRegionFinderFunc adapts a function to HandlerRegionFinder.
type HandlerRegionFinderFunc func(frame *CallFrame, t *metadata.TypeDef) (*metadata.ExceptionHandler, bool)

func (f HandlerRegionFinderFunc) FindHandler(frame *CallFrame, t *metadata.TypeDef) (*metadata.ExceptionHandler, bool) {
	return f(frame, t)
}

// BodyHandlerRegionFinder returns a finder that scans the method body's
// exception handler table in order. Catch clauses match when the exception
// type derives from the catch type; finally and fault clauses match any
// exception. With an unknown exception type only catch-all clauses match.
func BodyHandlerRegionFinder() HandlerRegionFinder {
	return HandlerRegionFinderFunc(findBodyHandler)
}

func findBodyHandler(frame *CallFrame, t *metadata.TypeDef) (*metadata.ExceptionHandler, bool) {
	body := frame.Body()
	if body == nil {
		return nil, false
	}
	for i := range body.ExceptionHandlers {
		h := &body.ExceptionHandlers[i]
		if !h.Protects(frame.ProgramCounter) {
			continue
		}
		switch h.Kind {
		case metadata.HandlerCatch:
			if h.CatchType == nil || (t != nil && t.IsAssignableTo(h.CatchType)) {
				return h, true
			}
		default:
			return h, true
		}
	}
	return nil, false
}

// unhandledException describes a failed dispatch. pointer is consumed.
func (m *Machine) unhandledException(frame *CallFrame, pointer *bitvec.Vector) *UnhandledExceptionError {
	e := &UnhandledExceptionError{Pointer: pointer.Clone(), Frame: frame}
	if pointer.IsFullyKnown() {
		if t, err := m.Handle(pointer.Uint64()).ObjectTypeDef(); err == nil {
			e.Type = t
		}
	}
	m.ValueFactory.Pool().Return(pointer)

	if m.HandlerRegionFinder != nil {
		if h, ok := m.HandlerRegionFinder.FindHandler(frame, e.Type); ok {
			e.Handler = h
		}
	}
	return e
}
