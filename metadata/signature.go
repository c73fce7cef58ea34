// Package metadata holds the resolved type, field and method descriptors the
// execution engine works with. A metadata reader produces these values; the
// engine only needs enough shape to pick memory layouts and resolve calls.
package metadata

import "strings"

// ElementType classifies a type signature.
type ElementType uint8

const (
	ElementVoid ElementType = iota
	ElementBoolean
	ElementChar
	ElementI1
	ElementU1
	ElementI2
	ElementU2
	ElementI4
	ElementU4
	ElementI8
	ElementU8
	ElementR4
	ElementR8
	ElementI
	ElementU
	ElementString
	ElementObject
	ElementClass
	ElementValueType
	ElementPtr
	ElementByRef
	ElementSzArray
)

var elementNames = map[ElementType]string{
	ElementVoid:      "void",
	ElementBoolean:   "bool",
	ElementChar:      "char",
	ElementI1:        "int8",
	ElementU1:        "uint8",
	ElementI2:        "int16",
	ElementU2:        "uint16",
	ElementI4:        "int32",
	ElementU4:        "uint32",
	ElementI8:        "int64",
	ElementU8:        "uint64",
	ElementR4:        "float32",
	ElementR8:        "float64",
	ElementI:         "native int",
	ElementU:         "native uint",
	ElementString:    "string",
	ElementObject:    "object",
	ElementClass:     "class",
	ElementValueType: "valuetype",
	ElementPtr:       "ptr",
	ElementByRef:     "byref",
	ElementSzArray:   "szarray",
}

func (e ElementType) String() string {
	if name, ok := elementNames[e]; ok {
		return name
	}
	return "unknown"
}

// TypeSig is a type signature. Type is set for class and value-type
// signatures; Elem is set for pointers, by-refs and arrays.
type TypeSig struct {
	Element ElementType
	Type    *TypeDef
	Elem    *TypeSig
}

// Primitive signatures.
var (
	Void    = &TypeSig{Element: ElementVoid}
	Boolean = &TypeSig{Element: ElementBoolean}
	Char    = &TypeSig{Element: ElementChar}
	SByte   = &TypeSig{Element: ElementI1}
	Byte    = &TypeSig{Element: ElementU1}
	Int16   = &TypeSig{Element: ElementI2}
	UInt16  = &TypeSig{Element: ElementU2}
	Int32   = &TypeSig{Element: ElementI4}
	UInt32  = &TypeSig{Element: ElementU4}
	Int64   = &TypeSig{Element: ElementI8}
	UInt64  = &TypeSig{Element: ElementU8}
	Single  = &TypeSig{Element: ElementR4}
	Double  = &TypeSig{Element: ElementR8}
	IntPtr  = &TypeSig{Element: ElementI}
	UIntPtr = &TypeSig{Element: ElementU}
	String  = &TypeSig{Element: ElementString}
	Object  = &TypeSig{Element: ElementObject}
)

// ClassSig returns the signature referring to t, as a value type or a class.
func ClassSig(t *TypeDef) *TypeSig {
	if t.IsValueType {
		return &TypeSig{Element: ElementValueType, Type: t}
	}
	return &TypeSig{Element: ElementClass, Type: t}
}

// PtrTo returns an unmanaged pointer signature.
func PtrTo(elem *TypeSig) *TypeSig {
	return &TypeSig{Element: ElementPtr, Elem: elem}
}

// ByRefTo returns a managed pointer signature.
func ByRefTo(elem *TypeSig) *TypeSig {
	return &TypeSig{Element: ElementByRef, Elem: elem}
}

// SzArrayOf returns a single-dimensional zero-based array signature.
func SzArrayOf(elem *TypeSig) *TypeSig {
	return &TypeSig{Element: ElementSzArray, Elem: elem}
}

// IsValueType reports whether values of this signature are stored inline.
func (s *TypeSig) IsValueType() bool {
	switch s.Element {
	case ElementString, ElementObject, ElementClass, ElementSzArray:
		return false
	case ElementValueType:
		return true
	default:
		return s.Element != ElementVoid
	}
}

// IsReference reports whether the signature denotes an object reference.
func (s *TypeSig) IsReference() bool {
	switch s.Element {
	case ElementString, ElementObject, ElementClass, ElementSzArray:
		return true
	}
	return false
}

// IsSigned reports whether integer values of this signature sign-extend.
func (s *TypeSig) IsSigned() bool {
	switch s.Element {
	case ElementI1, ElementI2, ElementI4, ElementI8, ElementI:
		return true
	}
	return false
}

// IsFloat reports whether the signature is a floating-point type.
func (s *TypeSig) IsFloat() bool {
	return s.Element == ElementR4 || s.Element == ElementR8
}

// Equal compares two signatures structurally. Named types compare by
// identity.
func (s *TypeSig) Equal(o *TypeSig) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || s.Element != o.Element {
		return false
	}
	switch s.Element {
	case ElementClass, ElementValueType:
		return s.Type == o.Type
	case ElementPtr, ElementByRef, ElementSzArray:
		return s.Elem.Equal(o.Elem)
	}
	return true
}

func (s *TypeSig) String() string {
	switch s.Element {
	case ElementClass, ElementValueType:
		return s.Type.FullName()
	case ElementPtr:
		return s.Elem.String() + "*"
	case ElementByRef:
		return s.Elem.String() + "&"
	case ElementSzArray:
		return s.Elem.String() + "[]"
	}
	return s.Element.String()
}

// ---------------------------------------------------------------------------
// Method signatures
// ---------------------------------------------------------------------------

// MethodSig is a method signature. HasThis marks instance methods, whose
// receiver is passed as an implicit first argument.
type MethodSig struct {
	HasThis bool
	Params  []*TypeSig
	Return  *TypeSig
}

// ParameterCount returns the total number of arguments including this.
func (s *MethodSig) ParameterCount() int {
	if s.HasThis {
		return len(s.Params) + 1
	}
	return len(s.Params)
}

// ReturnsValue reports whether the method produces a value.
func (s *MethodSig) ReturnsValue() bool {
	return s.Return != nil && s.Return.Element != ElementVoid
}

// Equal compares signatures structurally.
func (s *MethodSig) Equal(o *MethodSig) bool {
	if s.HasThis != o.HasThis || len(s.Params) != len(o.Params) {
		return false
	}
	for i := range s.Params {
		if !s.Params[i].Equal(o.Params[i]) {
			return false
		}
	}
	ret, oret := s.Return, o.Return
	if ret == nil {
		ret = Void
	}
	if oret == nil {
		oret = Void
	}
	return ret.Equal(oret)
}

func (s *MethodSig) String() string {
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = p.String()
	}
	ret := Void
	if s.Return != nil {
		ret = s.Return
	}
	return ret.String() + "(" + strings.Join(parts, ", ") + ")"
}
