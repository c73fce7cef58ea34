package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/cilemu/memory"
	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

// ---------------------------------------------------------------------------
// Address space layout
// ---------------------------------------------------------------------------

// Layout is the base address of every region of a machine's address space.
type Layout struct {
	Heap         uint64
	ObjectMap    uint64
	StaticFields uint64
	TypeHandles  uint64
	CallStack    uint64
	MaxAddress   uint64
}

// LayoutFor returns the fixed region layout of a 32-bit or 64-bit machine.
func LayoutFor(is32Bit bool) Layout {
	if is32Bit {
		return Layout{
			Heap:         0x1000_0000,
			ObjectMap:    0x6000_0000,
			StaticFields: 0x7000_0000,
			TypeHandles:  0x7100_0000,
			CallStack:    0x7fe0_0000,
			MaxAddress:   0xffff_ffff,
		}
	}
	return Layout{
		Heap:         0x0000_0100_0000_0000,
		ObjectMap:    0x0000_7ffe_0000_0000,
		StaticFields: 0x0000_7fff_0000_0000,
		TypeHandles:  0x0000_7fff_1000_0000,
		CallStack:    0x0000_7fff_8000_0000,
		MaxAddress:   0x0000_7fff_ffff_ffff,
	}
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options configures a Machine. Zero sizes and nil policies take defaults.
type Options struct {
	Is32Bit bool

	HeapSize       int
	StackSize      int
	StaticsSize    int
	ObjectMapSize  int
	TypeHandleSize int

	Invoker             MethodInvoker
	UnknownResolver     UnknownResolver
	Marshaller          ObjectMarshaller
	HandlerRegionFinder HandlerRegionFinder
}

const (
	DefaultHeapSize   = 1 << 20
	DefaultStackSize  = 1 << 20
	DefaultRegionSize = 64 << 10
)

// DefaultOptions returns the options of a 64-bit machine with default
// region sizes and policies.
func DefaultOptions() Options {
	return Options{
		HeapSize:       DefaultHeapSize,
		StackSize:      DefaultStackSize,
		StaticsSize:    DefaultRegionSize,
		ObjectMapSize:  DefaultRegionSize,
		TypeHandleSize: DefaultRegionSize,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.HeapSize <= 0 {
		o.HeapSize = d.HeapSize
	}
	if o.StackSize <= 0 {
		o.StackSize = d.StackSize
	}
	if o.StaticsSize <= 0 {
		o.StaticsSize = d.StaticsSize
	}
	if o.ObjectMapSize <= 0 {
		o.ObjectMapSize = d.ObjectMapSize
	}
	if o.TypeHandleSize <= 0 {
		o.TypeHandleSize = d.TypeHandleSize
	}
}

// ---------------------------------------------------------------------------
// Machine
// ---------------------------------------------------------------------------

// Machine emulates CIL methods of a module one instruction at a time.
// A Machine is not safe for concurrent use.
type Machine struct {
	ID     uuid.UUID
	Module *metadata.Module
	Layout Layout

	Memory       *memory.VirtualMemory
	ValueFactory *ValueFactory
	Heap         *Heap
	StaticFields *StaticFieldStorage
	ObjectMap    *ObjectMapMemory
	TypeHandles  *TypeHandleMemory
	CallStack    *CallStack
	Dispatcher   *Dispatcher

	Invoker             MethodInvoker
	UnknownResolver     UnknownResolver
	Marshaller          ObjectMarshaller
	HandlerRegionFinder HandlerRegionFinder

	CallSiteCaches *InlineCacheTable

	strings map[string]uint64
	log     commonlog.Logger
}

// New creates a machine for module and maps its regions.
func New(module *metadata.Module, opts Options) (*Machine, error) {
	if module == nil || module.CorLib == nil {
		return nil, errors.New("vm: module without core library")
	}
	opts.applyDefaults()

	factory := NewValueFactory(module, opts.Is32Bit)
	handles := NewTypeHandleMemory(opts.TypeHandleSize)
	m := &Machine{
		ID:                  uuid.New(),
		Module:              module,
		Layout:              LayoutFor(opts.Is32Bit),
		ValueFactory:        factory,
		TypeHandles:         handles,
		Heap:                NewHeap(opts.HeapSize, factory, handles),
		StaticFields:        NewStaticFieldStorage(opts.StaticsSize, factory),
		ObjectMap:           NewObjectMapMemory(opts.ObjectMapSize),
		CallStack:           NewCallStack(opts.StackSize, factory),
		Dispatcher:          NewDispatcher(),
		Invoker:             opts.Invoker,
		UnknownResolver:     opts.UnknownResolver,
		Marshaller:          opts.Marshaller,
		HandlerRegionFinder: opts.HandlerRegionFinder,
		CallSiteCaches:      NewInlineCacheTable(),
		strings:             make(map[string]uint64),
		log:                 commonlog.GetLogger("cilemu.vm"),
	}
	if m.Invoker == nil {
		m.Invoker = ReturnUnknownInvoker()
	}
	if m.UnknownResolver == nil {
		m.UnknownResolver = ThrowUnknownResolver()
	}
	if m.Marshaller == nil {
		m.Marshaller = NewObjectMarshaller(m)
	}
	if m.HandlerRegionFinder == nil {
		m.HandlerRegionFinder = BodyHandlerRegionFinder()
	}

	m.Memory = memory.NewVirtualMemory(m.Layout.MaxAddress)
	regions := []struct {
		base  uint64
		space memory.Space
	}{
		{m.Layout.Heap, m.Heap},
		{m.Layout.ObjectMap, m.ObjectMap},
		{m.Layout.StaticFields, m.StaticFields},
		{m.Layout.TypeHandles, m.TypeHandles},
		{m.Layout.CallStack, m.CallStack},
	}
	for _, r := range regions {
		if err := m.Memory.Map(r.base, r.space); err != nil {
			return nil, fmt.Errorf("vm: mapping regions: %w", err)
		}
	}

	arch := "x64"
	if opts.Is32Bit {
		arch = "x86"
	}
	m.log.Infof("machine %s: %s, heap %v, stack %v", m.ID, arch, m.Heap.AddressRange(), m.CallStack.AddressRange())
	return m, nil
}

// Is32Bit reports whether pointers are four bytes wide.
func (m *Machine) Is32Bit() bool {
	return m.ValueFactory.Is32Bit()
}

// PointerSize returns the size of a native integer in bytes.
func (m *Machine) PointerSize() int {
	return m.ValueFactory.PointerSize()
}

// InternString returns the heap address of the string object for s,
// allocating it on first use.
func (m *Machine) InternString(s string) (uint64, error) {
	if addr, ok := m.strings[s]; ok {
		return addr, nil
	}
	addr, err := m.Heap.AllocateString(s)
	if err != nil {
		return 0, err
	}
	m.strings[s] = addr
	return addr, nil
}

// AllocateObject allocates an instance of t and returns a handle to it.
func (m *Machine) AllocateObject(t *metadata.TypeDef, zero bool) (ObjectHandle, error) {
	addr, err := m.Heap.AllocateObject(t, zero)
	if err != nil {
		return ObjectHandle{}, err
	}
	return m.Handle(addr), nil
}

// ---------------------------------------------------------------------------
// Stepping
// ---------------------------------------------------------------------------

// Step executes the instruction at the current frame's program counter.
// A managed exception is reported as *UnhandledExceptionError with the
// frame left at the faulting instruction.
func (m *Machine) Step(ctx context.Context) error {
	frame := m.CallStack.Peek()
	if frame.IsRoot() {
		return ErrNoActiveFrame
	}
	body := frame.Body()
	if body == nil || body.Instructions == nil {
		return fmt.Errorf("vm: %s has no method body", frame.Method.FullName())
	}
	instr := body.Instructions.GetByOffset(frame.ProgramCounter)
	if instr == nil {
		return invalidProgram("no instruction at IL_%04X in %s", frame.ProgramCounter, frame.Method.FullName())
	}

	result, err := m.Dispatcher.Dispatch(&ExecutionContext{Machine: m, Context: ctx}, instr)
	if err != nil {
		m.log.Debugf("step failed at %v: %s", frame, err)
		return err
	}
	if !result.IsSuccess() {
		e := m.unhandledException(frame, result.ExceptionPointer())
		m.log.Debugf("%s", e)
		return e
	}
	return nil
}

// StepWhile steps at least once, then keeps stepping while cond holds.
// Cancellation is checked after every instruction.
func (m *Machine) StepWhile(ctx context.Context, cond func(*ExecutionContext) bool) error {
	ec := &ExecutionContext{Machine: m, Context: ctx}
	for {
		if err := m.Step(ctx); err != nil {
			return err
		}
		if err := m.checkCancelled(ctx); err != nil {
			return err
		}
		if !cond(ec) {
			return nil
		}
	}
}

// StepOver executes the current instruction; calls it makes run until they
// return to the current depth.
func (m *Machine) StepOver(ctx context.Context) error {
	depth := m.CallStack.Count()
	return m.StepWhile(ctx, func(*ExecutionContext) bool {
		return m.CallStack.Count() > depth
	})
}

// StepOut runs until the current frame returns.
func (m *Machine) StepOut(ctx context.Context) error {
	depth := m.CallStack.Count()
	return m.StepWhile(ctx, func(*ExecutionContext) bool {
		return m.CallStack.Count() >= depth
	})
}

// Run runs until every frame above the root has returned.
func (m *Machine) Run(ctx context.Context) error {
	return m.StepWhile(ctx, func(ec *ExecutionContext) bool {
		return !ec.CurrentFrame().IsRoot()
	})
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// Call runs method to completion with args in memory form, this first for
// instance methods. The returned value is an unpooled copy, nil for void
// methods. A wrong argument count fails before the call stack is touched.
func (m *Machine) Call(ctx context.Context, method *metadata.MethodDef, args []*bitvec.Vector) (*bitvec.Vector, error) {
	if _, err := m.Enter(method, args); err != nil {
		return nil, err
	}
	m.log.Debugf("call %s", method.FullName())

	if err := m.StepOut(ctx); err != nil {
		return nil, err
	}
	if !method.Signature.ReturnsValue() {
		return nil, nil
	}

	v := m.CallStack.Peek().EvaluationStack.PopTyped(method.ReturnType())
	defer m.ValueFactory.Pool().Return(v)
	m.log.Debugf("return %s = %v", method.FullName(), v)
	return v.Clone(), nil
}

// Enter pushes a frame for method with args stored into its arguments,
// without executing anything. On failure the call stack is unchanged.
func (m *Machine) Enter(method *metadata.MethodDef, args []*bitvec.Vector) (*CallFrame, error) {
	if want := method.Signature.ParameterCount(); len(args) != want {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrArgumentCount, method.FullName(), want, len(args))
	}

	frame, err := m.CallStack.Push(method)
	if err != nil {
		return nil, err
	}
	for i, arg := range args {
		if err := frame.WriteArgument(i, arg); err != nil {
			m.CallStack.Pop()
			return nil, err
		}
	}
	return frame, nil
}

// CallNative is Call with Go arguments, converted by the machine's
// ObjectMarshaller.
func (m *Machine) CallNative(ctx context.Context, method *metadata.MethodDef, args ...any) (*bitvec.Vector, error) {
	if want := method.Signature.ParameterCount(); len(args) != want {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrArgumentCount, method.FullName(), want, len(args))
	}
	vectors := make([]*bitvec.Vector, len(args))
	for i, arg := range args {
		v, err := m.Marshaller.ToBitVector(arg)
		if err != nil {
			return nil, fmt.Errorf("vm: marshalling argument %d of %s: %w", i, method.FullName(), err)
		}
		vectors[i] = v
	}
	return m.Call(ctx, method, vectors)
}
