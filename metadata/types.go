package metadata

import (
	"github.com/chazu/cilemu/cil"
)

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

// Module is a unit of resolution. Methods declared in a module other than
// the one a machine is emulating are considered external.
type Module struct {
	Name   string
	Types  []*TypeDef
	CorLib *CorLib
}

// NewModule creates a module with its own core library.
func NewModule(name string) *Module {
	return &Module{Name: name, CorLib: NewCorLib()}
}

// DefineType adds a reference type deriving from base (System.Object when
// nil).
func (m *Module) DefineType(namespace, name string, base *TypeDef) *TypeDef {
	if base == nil && m.CorLib != nil {
		base = m.CorLib.Object
	}
	t := &TypeDef{Namespace: namespace, Name: name, BaseType: base, Module: m}
	m.Types = append(m.Types, t)
	return t
}

// DefineValueType adds a value type deriving from System.ValueType.
func (m *Module) DefineValueType(namespace, name string) *TypeDef {
	t := m.DefineType(namespace, name, m.CorLib.ValueType)
	t.IsValueType = true
	return t
}

// DefineInterface adds an interface type.
func (m *Module) DefineInterface(namespace, name string) *TypeDef {
	t := &TypeDef{Namespace: namespace, Name: name, IsInterface: true, IsAbstract: true, Module: m}
	m.Types = append(m.Types, t)
	return t
}

// FindType looks a type up by its full name.
func (m *Module) FindType(fullName string) *TypeDef {
	for _, t := range m.Types {
		if t.FullName() == fullName {
			return t
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// TypeDef describes a type definition.
type TypeDef struct {
	Namespace   string
	Name        string
	Module      *Module
	BaseType    *TypeDef
	Interfaces  []*TypeDef
	IsValueType bool
	IsInterface bool
	IsAbstract  bool
	Fields      []*FieldDef
	Methods     []*MethodDef
	MethodImpls []MethodImpl
}

// MethodImpl maps an interface or base method to the body implementing it
// explicitly.
type MethodImpl struct {
	Declaration *MethodDef
	Body        *MethodDef
}

// FullName returns Namespace.Name.
func (t *TypeDef) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

func (t *TypeDef) String() string {
	return t.FullName()
}

// Sig returns the signature referring to t.
func (t *TypeDef) Sig() *TypeSig {
	return ClassSig(t)
}

// AddField declares a field.
func (t *TypeDef) AddField(name string, sig *TypeSig, static bool) *FieldDef {
	f := &FieldDef{Name: name, DeclaringType: t, Signature: sig, IsStatic: static}
	t.Fields = append(t.Fields, f)
	return f
}

// AddMethod declares a method.
func (t *TypeDef) AddMethod(name string, attrs MethodAttributes, sig *MethodSig, body *MethodBody) *MethodDef {
	if attrs&AttrStatic == 0 {
		sig.HasThis = true
	}
	m := &MethodDef{Name: name, DeclaringType: t, Signature: sig, Attributes: attrs, Body: body}
	t.Methods = append(t.Methods, m)
	return m
}

// AddMethodImpl records an explicit implementation of decl by body.
func (t *TypeDef) AddMethodImpl(decl, body *MethodDef) {
	t.MethodImpls = append(t.MethodImpls, MethodImpl{Declaration: decl, Body: body})
}

// FindMethod returns the first method with the given name.
func (t *TypeDef) FindMethod(name string) *MethodDef {
	for _, m := range t.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// FindField returns the field with the given name, searching base types.
func (t *TypeDef) FindField(name string) *FieldDef {
	for cur := t; cur != nil; cur = cur.BaseType {
		for _, f := range cur.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// InstanceFields returns all instance fields, inherited fields first.
func (t *TypeDef) InstanceFields() []*FieldDef {
	var chain []*TypeDef
	for cur := t; cur != nil; cur = cur.BaseType {
		chain = append(chain, cur)
	}
	var fields []*FieldDef
	for i := len(chain) - 1; i >= 0; i-- {
		for _, f := range chain[i].Fields {
			if !f.IsStatic {
				fields = append(fields, f)
			}
		}
	}
	return fields
}

// IsAssignableTo reports whether t is other or derives from / implements it.
func (t *TypeDef) IsAssignableTo(other *TypeDef) bool {
	for cur := t; cur != nil; cur = cur.BaseType {
		if cur == other {
			return true
		}
		for _, iface := range cur.Interfaces {
			if iface == other {
				return true
			}
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

// FieldDef describes a field.
type FieldDef struct {
	Name          string
	DeclaringType *TypeDef
	Signature     *TypeSig
	IsStatic      bool
}

func (f *FieldDef) String() string {
	return f.DeclaringType.FullName() + "::" + f.Name
}

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

// MethodAttributes are the method flags the engine cares about.
type MethodAttributes uint16

const (
	AttrStatic MethodAttributes = 1 << iota
	AttrVirtual
	AttrAbstract
	AttrNewSlot
	AttrFinal
)

// MethodDef describes a method. Body is nil for abstract and external
// methods.
type MethodDef struct {
	Name          string
	DeclaringType *TypeDef
	Signature     *MethodSig
	Attributes    MethodAttributes
	Body          *MethodBody
}

func (m *MethodDef) IsStatic() bool   { return m.Attributes&AttrStatic != 0 }
func (m *MethodDef) IsVirtual() bool  { return m.Attributes&AttrVirtual != 0 }
func (m *MethodDef) IsAbstract() bool { return m.Attributes&AttrAbstract != 0 }

// IsReuseSlot reports whether a virtual method overrides an inherited slot
// instead of introducing a new one.
func (m *MethodDef) IsReuseSlot() bool {
	return m.Attributes&AttrNewSlot == 0
}

// IsConstructor reports whether the method is an instance constructor.
func (m *MethodDef) IsConstructor() bool {
	return m.Name == ".ctor"
}

// FullName returns Type::Name.
func (m *MethodDef) FullName() string {
	if m.DeclaringType == nil {
		return m.Name
	}
	return m.DeclaringType.FullName() + "::" + m.Name
}

func (m *MethodDef) String() string {
	return m.FullName()
}

// ParameterType returns the type of argument i, counting this as argument 0
// for instance methods. Value-type receivers are passed by reference.
func (m *MethodDef) ParameterType(i int) *TypeSig {
	if m.Signature.HasThis {
		if i == 0 {
			sig := ClassSig(m.DeclaringType)
			if m.DeclaringType.IsValueType {
				return ByRefTo(sig)
			}
			return sig
		}
		i--
	}
	return m.Signature.Params[i]
}

// ParameterTypes returns all argument types including this.
func (m *MethodDef) ParameterTypes() []*TypeSig {
	types := make([]*TypeSig, m.Signature.ParameterCount())
	for i := range types {
		types[i] = m.ParameterType(i)
	}
	return types
}

// ReturnType returns the return type, Void when there is none.
func (m *MethodDef) ReturnType() *TypeSig {
	if m.Signature.Return == nil {
		return Void
	}
	return m.Signature.Return
}

// ---------------------------------------------------------------------------
// Method bodies
// ---------------------------------------------------------------------------

// HandlerKind is the kind of a protected region handler.
type HandlerKind uint8

const (
	HandlerCatch HandlerKind = iota
	HandlerFilter
	HandlerFinally
	HandlerFault
)

// ExceptionHandler is one protected region of a method body.
type ExceptionHandler struct {
	Kind         HandlerKind
	TryStart     int
	TryEnd       int
	HandlerStart int
	HandlerEnd   int
	CatchType    *TypeDef
}

// Protects reports whether the try block covers offset.
func (h ExceptionHandler) Protects(offset int) bool {
	return offset >= h.TryStart && offset < h.TryEnd
}

// MethodBody holds decoded instructions and local variable types.
type MethodBody struct {
	Instructions      *cil.InstructionList
	Locals            []*TypeSig
	InitLocals        bool
	ExceptionHandlers []ExceptionHandler
}

// NewMethodBody creates a body with InitLocals set.
func NewMethodBody(locals []*TypeSig, instrs ...*cil.Instruction) *MethodBody {
	return &MethodBody{
		Instructions: cil.NewInstructionList(instrs...),
		Locals:       locals,
		InitLocals:   true,
	}
}
