package metadata

import "testing"

func TestInstanceFieldsInheritedFirst(t *testing.T) {
	mod := NewModule("Test")
	base := mod.DefineType("App", "Base", nil)
	baseField := base.AddField("a", Int32, false)
	base.AddField("counter", Int32, true)
	derived := mod.DefineType("App", "Derived", base)
	derivedField := derived.AddField("b", Int64, false)

	fields := derived.InstanceFields()
	if len(fields) != 2 {
		t.Fatalf("len(InstanceFields()) = %d, want 2", len(fields))
	}
	if fields[0] != baseField || fields[1] != derivedField {
		t.Errorf("InstanceFields() = %v, want [%v %v]", fields, baseField, derivedField)
	}
	if got := derived.FindField("a"); got != baseField {
		t.Errorf("FindField(a) = %v", got)
	}
}

func TestParameterTypes(t *testing.T) {
	mod := NewModule("Test")
	point := mod.DefineValueType("App", "Point")
	m := point.AddMethod("Offset", 0, &MethodSig{Params: []*TypeSig{Int32, Int32}}, nil)

	if got := m.Signature.ParameterCount(); got != 3 {
		t.Fatalf("ParameterCount() = %d, want 3", got)
	}
	this := m.ParameterType(0)
	if this.Element != ElementByRef || this.Elem.Type != point {
		t.Errorf("this type = %v, want Point&", this)
	}
	if m.Signature.ReturnsValue() {
		t.Error("void method reports a return value")
	}

	static := point.AddMethod("Create", AttrStatic, &MethodSig{Return: ClassSig(point)}, nil)
	if static.Signature.HasThis || static.Signature.ParameterCount() != 0 {
		t.Errorf("static method signature = %+v", static.Signature)
	}
}

func TestSignatureEquality(t *testing.T) {
	mod := NewModule("Test")
	a := mod.DefineType("App", "A", nil)
	b := mod.DefineType("App", "B", nil)

	tests := []struct {
		x, y *TypeSig
		want bool
	}{
		{Int32, &TypeSig{Element: ElementI4}, true},
		{Int32, Int64, false},
		{ClassSig(a), ClassSig(a), true},
		{ClassSig(a), ClassSig(b), false},
		{SzArrayOf(Int32), SzArrayOf(Int32), true},
		{ByRefTo(ClassSig(a)), PtrTo(ClassSig(a)), false},
	}
	for _, tc := range tests {
		if got := tc.x.Equal(tc.y); got != tc.want {
			t.Errorf("%v.Equal(%v) = %v, want %v", tc.x, tc.y, got, tc.want)
		}
	}

	s1 := &MethodSig{HasThis: true, Params: []*TypeSig{Int32}, Return: String}
	s2 := &MethodSig{HasThis: true, Params: []*TypeSig{Int32}, Return: String}
	s3 := &MethodSig{HasThis: true, Params: []*TypeSig{Int64}, Return: String}
	if !s1.Equal(s2) || s1.Equal(s3) {
		t.Error("method signature equality is wrong")
	}
}

func TestCorLibHierarchy(t *testing.T) {
	c := NewCorLib()
	if !c.NullReferenceException.IsAssignableTo(c.Exception) {
		t.Error("NullReferenceException should derive from Exception")
	}
	if c.MissingMethodException.FindField("_message") != c.ExceptionMessage {
		t.Error("exceptions should inherit _message")
	}
	if !c.ObjectToString.IsReuseSlot() || !c.ObjectToString.IsVirtual() {
		t.Error("Object.ToString should be a virtual slot")
	}
}
