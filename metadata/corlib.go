package metadata

// CorLib holds the core library types the engine needs to know by identity:
// the root of the hierarchy and the exception types it raises itself.
type CorLib struct {
	Module *Module

	Object                   *TypeDef
	ValueType                *TypeDef
	String                   *TypeDef
	Array                    *TypeDef
	Exception                *TypeDef
	NullReferenceException   *TypeDef
	MissingMethodException   *TypeDef
	InvalidCastException     *TypeDef
	IndexOutOfRangeException *TypeDef
	OverflowException        *TypeDef
	ExceptionMessage         *FieldDef
	ObjectToString           *MethodDef
	ObjectGetHashCode        *MethodDef
}

// NewCorLib builds a minimal core library.
func NewCorLib() *CorLib {
	m := &Module{Name: "System.Private.CoreLib"}
	c := &CorLib{Module: m}

	define := func(name string, base *TypeDef) *TypeDef {
		t := &TypeDef{Namespace: "System", Name: name, BaseType: base, Module: m}
		m.Types = append(m.Types, t)
		return t
	}

	c.Object = define("Object", nil)
	c.ValueType = define("ValueType", c.Object)
	c.ValueType.IsAbstract = true
	c.String = define("String", c.Object)
	c.Array = define("Array", c.Object)
	c.Array.IsAbstract = true

	c.Exception = define("Exception", c.Object)
	c.ExceptionMessage = c.Exception.AddField("_message", String, false)
	c.NullReferenceException = define("NullReferenceException", c.Exception)
	c.MissingMethodException = define("MissingMethodException", c.Exception)
	c.InvalidCastException = define("InvalidCastException", c.Exception)
	c.IndexOutOfRangeException = define("IndexOutOfRangeException", c.Exception)
	c.OverflowException = define("OverflowException", c.Exception)

	c.ObjectToString = c.Object.AddMethod("ToString", AttrVirtual, &MethodSig{Return: String}, nil)
	c.ObjectGetHashCode = c.Object.AddMethod("GetHashCode", AttrVirtual, &MethodSig{Return: Int32}, nil)
	return c
}
