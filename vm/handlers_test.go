package vm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/chazu/cilemu/cil"
	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
	"github.com/chazu/cilemu/pkg/trilean"
)

// eval runs instrs as the body of a parameterless static method.
func eval(t *testing.T, ret *metadata.TypeSig, locals []*metadata.TypeSig, instrs ...*cil.Instruction) *bitvec.Vector {
	t.Helper()
	f := newFixture()
	method := f.static("Eval", returns(ret), locals, instrs...)
	m := newMachine(t, f.module, Options{})
	return call(t, m, method)
}

func ldc(n int32) *cil.Instruction {
	return opWith(cil.LdcI4, n)
}

// ---------------------------------------------------------------------------
// Arithmetic and conversions
// ---------------------------------------------------------------------------

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name   string
		ret    *metadata.TypeSig
		instrs []*cil.Instruction
		want   int64
	}{
		{"add", metadata.Int32, []*cil.Instruction{ldc(40), ldc(2), op(cil.Add)}, 42},
		{"sub", metadata.Int32, []*cil.Instruction{ldc(2), ldc(40), op(cil.Sub)}, -38},
		{"mul", metadata.Int32, []*cil.Instruction{ldc(-6), ldc(7), op(cil.Mul)}, -42},
		{"add overflow wraps", metadata.Int32, []*cil.Instruction{ldc(0x7fffffff), op(cil.LdcI41), op(cil.Add)}, -0x80000000},
		{"and", metadata.Int32, []*cil.Instruction{ldc(0b1100), ldc(0b1010), op(cil.And)}, 0b1000},
		{"or", metadata.Int32, []*cil.Instruction{ldc(0b1100), ldc(0b1010), op(cil.Or)}, 0b1110},
		{"xor", metadata.Int32, []*cil.Instruction{ldc(0b1100), ldc(0b1010), op(cil.Xor)}, 0b0110},
		{"neg", metadata.Int32, []*cil.Instruction{ldc(5), op(cil.Neg)}, -5},
		{"not", metadata.Int32, []*cil.Instruction{op(cil.LdcI40), op(cil.Not)}, -1},
		{"macro constant", metadata.Int32, []*cil.Instruction{op(cil.LdcI4M1)}, -1},
		{"i8", metadata.Int64, []*cil.Instruction{opWith(cil.LdcI8, int64(1)<<40), opWith(cil.LdcI8, int64(1)), op(cil.Add)}, 1<<40 + 1},
		{"conv.i8 sign-extends", metadata.Int64, []*cil.Instruction{op(cil.LdcI4M1), op(cil.ConvI8)}, -1},
		{"conv.i4 truncates", metadata.Int32, []*cil.Instruction{opWith(cil.LdcI8, int64(0x1_0000_0005)), op(cil.ConvI4)}, 5},
		{"int32 plus native int", metadata.IntPtr, []*cil.Instruction{ldc(3), ldc(4), op(cil.ConvI), op(cil.Add)}, 7},
		{"float add then conv.i4", metadata.Int32, []*cil.Instruction{opWith(cil.LdcR8, 1.5), opWith(cil.LdcR8, 2.0), op(cil.Add), op(cil.ConvI4)}, 3},
		{"float32 constant", metadata.Int32, []*cil.Instruction{opWith(cil.LdcR4, float32(2.5)), opWith(cil.LdcR8, 2.0), op(cil.Mul), op(cil.ConvI4)}, 5},
		{"dup", metadata.Int32, []*cil.Instruction{ldc(6), op(cil.Dup), op(cil.Mul)}, 36},
		{"pop", metadata.Int32, []*cil.Instruction{ldc(1), ldc(2), op(cil.Pop)}, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			instrs := append(tc.instrs, op(cil.Ret))
			v := eval(t, tc.ret, nil, instrs...)
			if !v.IsFullyKnown() {
				t.Fatalf("result %v is not fully known", v)
			}
			if v.Int64() != tc.want {
				t.Errorf("result = %d, want %d", v.Int64(), tc.want)
			}
		})
	}
}

func TestArithmeticRejectsMismatchedOperands(t *testing.T) {
	f := newFixture()
	method := f.static("Bad", returns(metadata.Int32), nil, ldc(1), opWith(cil.LdcI8, int64(1)), op(cil.Add), op(cil.Ret))
	m := newMachine(t, f.module, Options{})

	_, err := m.Call(context.Background(), method, nil)
	var invalid *InvalidProgramError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want *InvalidProgramError", err)
	}
	if invalid.Instruction == nil || invalid.Instruction.OpCode.Code != cil.Add {
		t.Errorf("invalid program reported at %v, want the add", invalid.Instruction)
	}
}

func TestStackUnderflow(t *testing.T) {
	f := newFixture()
	method := f.static("Underflow", returns(nil), nil, op(cil.Pop), op(cil.Ret))
	m := newMachine(t, f.module, Options{})

	_, err := m.Call(context.Background(), method, nil)
	var invalid *InvalidProgramError
	if !errors.As(err, &invalid) {
		t.Errorf("err = %v, want *InvalidProgramError", err)
	}
}

// ---------------------------------------------------------------------------
// Comparisons
// ---------------------------------------------------------------------------

func TestComparisons(t *testing.T) {
	tests := []struct {
		name string
		a, b *cil.Instruction
		cmp  cil.Code
		want int64
	}{
		{"ceq equal", ldc(3), ldc(3), cil.Ceq, 1},
		{"ceq different", ldc(3), ldc(4), cil.Ceq, 0},
		{"cgt", ldc(4), ldc(3), cil.Cgt, 1},
		{"cgt signed", op(cil.LdcI4M1), ldc(1), cil.Cgt, 0},
		{"cgt.un", op(cil.LdcI4M1), ldc(1), cil.CgtUn, 1},
		{"clt", op(cil.LdcI4M1), ldc(1), cil.Clt, 1},
		{"clt.un", op(cil.LdcI4M1), ldc(1), cil.CltUn, 0},
		{"float clt", opWith(cil.LdcR8, 1.5), opWith(cil.LdcR8, 2.5), cil.Clt, 1},
		{"ceq null", op(cil.Ldnull), op(cil.Ldnull), cil.Ceq, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := eval(t, metadata.Int32, nil, tc.a, tc.b, op(tc.cmp), op(cil.Ret))
			if v.Int64() != tc.want {
				t.Errorf("result = %d, want %d", v.Int64(), tc.want)
			}
		})
	}
}

func TestCompareWithUnknown(t *testing.T) {
	f := newFixture()
	isZero := f.static("IsZero", returns(metadata.Int32, metadata.Int32), nil,
		op(cil.Ldarg0),
		op(cil.LdcI40),
		op(cil.Ceq),
		op(cil.Ret),
	)
	m := newMachine(t, f.module, Options{})

	v := call(t, m, isZero, bitvec.New(4, false))
	if v.Bit(0) != trilean.Unknown {
		t.Errorf("bit 0 of IsZero(unknown) = %v, want unknown", v.Bit(0))
	}
	for i := 1; i < v.BitCount(); i++ {
		if v.Bit(i) != trilean.False {
			t.Fatalf("bit %d of IsZero(unknown) = %v, want known zero", i, v.Bit(i))
		}
	}

	// A known low bit decides equality even when other bits are unknown.
	partial := bitvec.New(4, false)
	partial.SetBit(0, trilean.True)
	if v := call(t, m, isZero, partial); !v.IsFullyKnown() || v.Int32() != 0 {
		t.Errorf("IsZero(odd) = %v, want known 0", v)
	}
}

func TestOrderingWithUnknownAtRangeEnds(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name string
		code cil.Code
		rhs  int32
	}{
		{"clt.un", cil.CltUn, 0},
		{"cgt.un", cil.CgtUn, -1},
		{"clt", cil.Clt, math.MinInt32},
		{"cgt", cil.Cgt, math.MaxInt32},
	}
	for i, tc := range tests {
		method := f.static(fmt.Sprintf("Order%d", i), returns(metadata.Int32, metadata.Int32), nil,
			op(cil.Ldarg0),
			opWith(cil.LdcI4, tc.rhs),
			op(tc.code),
			op(cil.Ret),
		)
		m := newMachine(t, f.module, Options{})
		if v := call(t, m, method, bitvec.New(4, false)); v.Bit(0) != trilean.Unknown {
			t.Errorf("%s unknown, %d: bit 0 = %v, want unknown", tc.name, tc.rhs, v.Bit(0))
		}
	}
}

// ---------------------------------------------------------------------------
// Branches
// ---------------------------------------------------------------------------

// choose returns 2 when its argument is non-zero and 1 otherwise.
func choose(f *fixture) *metadata.MethodDef {
	taken := ldc(2)
	return f.static("Choose", returns(metadata.Int32, metadata.Int32), nil,
		op(cil.Ldarg0),
		opWith(cil.Brtrue, taken),
		op(cil.LdcI41),
		op(cil.Ret),
		taken,
		op(cil.Ret),
	)
}

func TestConditionalBranch(t *testing.T) {
	f := newFixture()
	method := choose(f)
	m := newMachine(t, f.module, Options{})

	for _, tc := range []struct{ arg, want int32 }{{0, 1}, {5, 2}, {-1, 2}} {
		if v := call(t, m, method, bitvec.FromInt32(tc.arg)); v.Int32() != tc.want {
			t.Errorf("Choose(%d) = %d, want %d", tc.arg, v.Int32(), tc.want)
		}
	}
}

func TestBrfalseAndLoop(t *testing.T) {
	// sum = 0; for i = n; i != 0; i-- { sum += i }
	f := newFixture()
	check := op(cil.Ldloc1)
	done := op(cil.Ldloc0)
	body := op(cil.Ldloc0)
	method := f.static("Sum", returns(metadata.Int32, metadata.Int32), []*metadata.TypeSig{metadata.Int32, metadata.Int32},
		op(cil.Ldarg0),
		op(cil.Stloc1),
		opWith(cil.Br, check),
		body,
		op(cil.Ldloc1),
		op(cil.Add),
		op(cil.Stloc0),
		op(cil.Ldloc1),
		op(cil.LdcI41),
		op(cil.Sub),
		op(cil.Stloc1),
		check,
		opWith(cil.Brfalse, done),
		opWith(cil.Br, body),
		done,
		op(cil.Ret),
	)
	m := newMachine(t, f.module, Options{})

	if v := call(t, m, method, bitvec.FromInt32(10)); v.Int32() != 55 {
		t.Errorf("Sum(10) = %d, want 55", v.Int32())
	}
}

func TestBranchOnUnknownCondition(t *testing.T) {
	f := newFixture()
	method := choose(f)

	m := newMachine(t, f.module, Options{})
	_, err := m.Call(context.Background(), method, []*bitvec.Vector{bitvec.New(4, false)})
	if !errors.Is(err, ErrUnknownValue) {
		t.Fatalf("err = %v, want ErrUnknownValue", err)
	}

	m = newMachine(t, f.module, Options{UnknownResolver: alwaysTaken{ThrowUnknownResolver()}})
	if v := call(t, m, method, bitvec.New(4, false)); v.Int32() != 2 {
		t.Errorf("Choose(unknown) with branch taken = %d, want 2", v.Int32())
	}
}

// alwaysTaken resolves every unknown branch condition to true.
type alwaysTaken struct {
	UnknownResolver
}

func (alwaysTaken) ResolveBranchCondition(*ExecutionContext, *cil.Instruction, StackSlot) (bool, error) {
	return true, nil
}

func TestBranchToInvalidTarget(t *testing.T) {
	f := newFixture()
	method := f.static("Jump", returns(nil), nil, opWith(cil.Br, cil.Label(3)), op(cil.Ret))
	m := newMachine(t, f.module, Options{})

	_, err := m.Call(context.Background(), method, nil)
	var invalid *InvalidProgramError
	if !errors.As(err, &invalid) {
		t.Errorf("err = %v, want *InvalidProgramError", err)
	}
}

func TestRetWithLeftoverStack(t *testing.T) {
	f := newFixture()
	method := f.static("Leftover", returns(nil), nil, ldc(1), op(cil.Ret))
	m := newMachine(t, f.module, Options{})

	_, err := m.Call(context.Background(), method, nil)
	var invalid *InvalidProgramError
	if !errors.As(err, &invalid) {
		t.Errorf("err = %v, want *InvalidProgramError", err)
	}
}

// ---------------------------------------------------------------------------
// Arguments and locals
// ---------------------------------------------------------------------------

func TestLocalsAndArguments(t *testing.T) {
	f := newFixture()
	square := f.static("Square", returns(metadata.Int32, metadata.Int32), []*metadata.TypeSig{metadata.Int32},
		op(cil.Ldarg0),
		op(cil.Stloc0),
		op(cil.Ldloc0),
		op(cil.Ldloc0),
		op(cil.Mul),
		opWith(cil.Starg, 0),
		opWith(cil.Ldarg, 0),
		op(cil.Ret),
	)
	m := newMachine(t, f.module, Options{})

	if v := call(t, m, square, bitvec.FromInt32(-9)); v.Int32() != 81 {
		t.Errorf("Square(-9) = %d, want 81", v.Int32())
	}
}

func TestUninitializedLocalsAreUnknown(t *testing.T) {
	f := newFixture()
	method := f.static("Garbage", returns(metadata.Int32), []*metadata.TypeSig{metadata.Int32},
		op(cil.Ldloc0),
		op(cil.Ret),
	)
	method.Body.InitLocals = false
	m := newMachine(t, f.module, Options{})

	if v := call(t, m, method); !v.IsFullyUnknown() {
		t.Errorf("uninitialized local = %v, want fully unknown", v)
	}
}

func TestNarrowLocals(t *testing.T) {
	v := eval(t, metadata.Int32, []*metadata.TypeSig{metadata.SByte},
		ldc(0x1ff),
		op(cil.Stloc0),
		op(cil.Ldloc0),
		op(cil.Ret),
	)
	if v.Int32() != -1 {
		t.Errorf("0x1ff through an int8 local = %d, want -1", v.Int32())
	}
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

type pointFixture struct {
	*fixture
	point   *metadata.TypeDef
	x, y    *metadata.FieldDef
	counter *metadata.FieldDef
	setX    *metadata.MethodDef
	getY    *metadata.MethodDef
}

func newPointFixture() *pointFixture {
	f := newFixture()
	p := &pointFixture{fixture: f}
	p.point = f.module.DefineType("Test", "Point", nil)
	p.x = p.point.AddField("X", metadata.Int32, false)
	p.y = p.point.AddField("Y", metadata.Int64, false)
	p.counter = p.point.AddField("Counter", metadata.Int32, true)

	p.setX = f.static("SetX", returns(nil, p.point.Sig(), metadata.Int32), nil,
		op(cil.Ldarg0),
		op(cil.Ldarg1),
		opWith(cil.Stfld, p.x),
		op(cil.Ret),
	)
	p.getY = f.static("GetY", returns(metadata.Int64, p.point.Sig()), nil,
		op(cil.Ldarg0),
		opWith(cil.Ldfld, p.y),
		op(cil.Ret),
	)
	return p
}

func TestInstanceFields(t *testing.T) {
	p := newPointFixture()
	getX := p.static("GetX", returns(metadata.Int32, p.point.Sig()), nil,
		op(cil.Ldarg0),
		opWith(cil.Ldfld, p.x),
		op(cil.Ret),
	)
	m := newMachine(t, p.module, Options{})

	h, err := m.AllocateObject(p.point, true)
	if err != nil {
		t.Fatalf("AllocateObject: %v", err)
	}
	ref := pointerTo(m, h.Address)

	call(t, m, p.setX, ref, bitvec.FromInt32(7))
	if v := call(t, m, getX, ref); v.Int32() != 7 {
		t.Errorf("GetX() = %d, want 7", v.Int32())
	}
	stored, err := h.ReadField(p.x)
	if err != nil || stored.Int32() != 7 {
		t.Errorf("ReadField(X) = %v, %v, want 7", stored, err)
	}
	if v := call(t, m, p.getY, ref); !v.IsFullyKnown() || v.Int64() != 0 {
		t.Errorf("GetY() on zeroed object = %v, want 0", v)
	}
}

func TestFieldAccessOnNull(t *testing.T) {
	p := newPointFixture()
	m := newMachine(t, p.module, Options{})

	for _, method := range []*metadata.MethodDef{p.getY, p.setX} {
		args := []*bitvec.Vector{pointerTo(m, 0)}
		if method == p.setX {
			args = append(args, bitvec.FromInt32(1))
		}
		_, err := m.Call(context.Background(), method, args)
		var unhandled *UnhandledExceptionError
		if !errors.As(err, &unhandled) || unhandled.Type != p.corlib().NullReferenceException {
			t.Errorf("%v on null: err = %v, want NullReferenceException", method, err)
		}
	}
}

func TestFieldAccessOnUnknownReceiver(t *testing.T) {
	p := newPointFixture()

	m := newMachine(t, p.module, Options{})
	_, err := m.Call(context.Background(), p.getY, []*bitvec.Vector{bitvec.New(8, false)})
	if !errors.Is(err, ErrUnknownValue) {
		t.Errorf("ldfld on unknown receiver: err = %v, want ErrUnknownValue", err)
	}

	m = newMachine(t, p.module, Options{UnknownResolver: ConservativeUnknownResolver()})
	if v := call(t, m, p.getY, bitvec.New(8, false)); !v.IsFullyUnknown() {
		t.Errorf("ldfld on unknown receiver = %v, want fully unknown", v)
	}
	used := m.Heap.Used()
	call(t, m, p.setX, bitvec.New(8, false), bitvec.FromInt32(3))
	if m.Heap.Used() != used {
		t.Error("stfld on unknown receiver should not touch memory")
	}
}

func TestStaticFields(t *testing.T) {
	p := newPointFixture()
	bump := p.static("Bump", returns(metadata.Int32), nil,
		opWith(cil.Ldsfld, p.counter),
		op(cil.LdcI41),
		op(cil.Add),
		opWith(cil.Stsfld, p.counter),
		opWith(cil.Ldsfld, p.counter),
		op(cil.Ret),
	)
	m := newMachine(t, p.module, Options{})

	for want := int32(1); want <= 3; want++ {
		if v := call(t, m, bump); v.Int32() != want {
			t.Errorf("Bump() = %d, want %d", v.Int32(), want)
		}
	}
	if len(m.StaticFields.Fields()) != 1 {
		t.Errorf("static storage holds %d fields, want 1", len(m.StaticFields.Fields()))
	}
}

// ---------------------------------------------------------------------------
// Pointers and value types
// ---------------------------------------------------------------------------

func TestIndirectLoadStore(t *testing.T) {
	v := eval(t, metadata.Int64, []*metadata.TypeSig{metadata.Int64},
		opWith(cil.Ldloca, 0),
		opWith(cil.LdcI8, int64(-77)),
		op(cil.StindI8),
		opWith(cil.Ldloca, 0),
		op(cil.LdindI8),
		op(cil.Ret),
	)
	if v.Int64() != -77 {
		t.Errorf("stind/ldind round trip = %d, want -77", v.Int64())
	}
}

func TestIndirectThroughNull(t *testing.T) {
	f := newFixture()
	method := f.static("Deref", returns(metadata.Int32), nil,
		op(cil.LdcI40),
		op(cil.ConvI),
		op(cil.LdindI4),
		op(cil.Ret),
	)
	m := newMachine(t, f.module, Options{})

	_, err := m.Call(context.Background(), method, nil)
	var unhandled *UnhandledExceptionError
	if !errors.As(err, &unhandled) || unhandled.Type != f.corlib().NullReferenceException {
		t.Errorf("err = %v, want NullReferenceException", err)
	}
}

func TestIndirectThroughUnknownPointer(t *testing.T) {
	f := newFixture()
	load := f.static("Load", returns(metadata.Int32, metadata.IntPtr), nil,
		op(cil.Ldarg0),
		op(cil.LdindI4),
		op(cil.Ret),
	)
	store := f.static("Store", returns(nil, metadata.IntPtr), nil,
		op(cil.Ldarg0),
		ldc(1),
		op(cil.StindI4),
		op(cil.Ret),
	)

	m := newMachine(t, f.module, Options{})
	if _, err := m.Call(context.Background(), load, []*bitvec.Vector{bitvec.New(8, false)}); !errors.Is(err, ErrUnknownValue) {
		t.Errorf("ldind through unknown pointer: err = %v, want ErrUnknownValue", err)
	}

	m = newMachine(t, f.module, Options{UnknownResolver: ConservativeUnknownResolver()})
	if v := call(t, m, load, bitvec.New(8, false)); !v.IsFullyUnknown() {
		t.Errorf("ldind through unknown pointer = %v, want fully unknown", v)
	}
	call(t, m, store, bitvec.New(8, false))
}

func TestInitobj(t *testing.T) {
	f := newFixture()
	vec := f.module.DefineValueType("Test", "Vec")
	x := vec.AddField("X", metadata.Int32, false)
	vec.AddField("Y", metadata.Int32, false)

	build := func(initobj bool) *metadata.MethodDef {
		instrs := []*cil.Instruction{}
		if initobj {
			instrs = append(instrs, opWith(cil.Ldloca, 0), opWith(cil.Initobj, vec))
		}
		instrs = append(instrs, opWith(cil.Ldloca, 0), opWith(cil.Ldfld, x), op(cil.Ret))
		method := f.static("ReadX", returns(metadata.Int32), []*metadata.TypeSig{vec.Sig()}, instrs...)
		method.Body.InitLocals = false
		return method
	}
	m := newMachine(t, f.module, Options{})

	if v := call(t, m, build(false)); !v.IsFullyUnknown() {
		t.Errorf("field of uninitialized struct = %v, want fully unknown", v)
	}
	if v := call(t, m, build(true)); !v.IsFullyKnown() || v.Int32() != 0 {
		t.Errorf("field after initobj = %v, want 0", v)
	}
}

func TestStructOnEvaluationStack(t *testing.T) {
	f := newFixture()
	vec := f.module.DefineValueType("Test", "Vec")
	vec.AddField("X", metadata.Int32, false)
	y := vec.AddField("Y", metadata.Int32, false)

	method := f.static("ReadY", returns(metadata.Int32, vec.Sig()), nil,
		op(cil.Ldarg0),
		opWith(cil.Ldfld, y),
		op(cil.Ret),
	)
	m := newMachine(t, f.module, Options{})

	s := NewStructValue(m.ValueFactory, vec, true)
	if err := s.SetField(y, bitvec.FromInt32(12)); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if v := call(t, m, method, s.Encode()); v.Int32() != 12 {
		t.Errorf("ReadY() = %d, want 12", v.Int32())
	}
}

// ---------------------------------------------------------------------------
// Arrays and strings
// ---------------------------------------------------------------------------

func TestNewarrLdlen(t *testing.T) {
	v := eval(t, metadata.Int32, nil,
		ldc(3),
		opWith(cil.Newarr, metadata.Int64),
		op(cil.Ldlen),
		op(cil.ConvI4),
		op(cil.Ret),
	)
	if v.Int32() != 3 {
		t.Errorf("ldlen of new int64[3] = %d, want 3", v.Int32())
	}
}

func TestNewarrNegativeLength(t *testing.T) {
	f := newFixture()
	method := f.static("Negative", returns(metadata.Object), nil,
		op(cil.LdcI4M1),
		opWith(cil.Newarr, metadata.Int32),
		op(cil.Ret),
	)
	m := newMachine(t, f.module, Options{})

	_, err := m.Call(context.Background(), method, nil)
	var unhandled *UnhandledExceptionError
	if !errors.As(err, &unhandled) || unhandled.Type != f.corlib().OverflowException {
		t.Errorf("err = %v, want OverflowException", err)
	}
}

func TestNewarrUnknownLength(t *testing.T) {
	f := newFixture()
	method := f.static("Sized", returns(metadata.Object, metadata.Int32), nil,
		op(cil.Ldarg0),
		opWith(cil.Newarr, metadata.Int32),
		op(cil.Ret),
	)
	m := newMachine(t, f.module, Options{})

	if v := call(t, m, method, bitvec.New(4, false)); !v.IsFullyUnknown() {
		t.Errorf("array of unknown length = %v, want an unknown reference", v)
	}
	if m.Heap.Used() != 0 {
		t.Errorf("array of unknown length allocated %d bytes", m.Heap.Used())
	}
}

func TestLdstr(t *testing.T) {
	f := newFixture()
	method := f.static("Greeting", returns(metadata.String), nil, opWith(cil.Ldstr, "héllo, wörld"), op(cil.Ret))
	m := newMachine(t, f.module, Options{})

	v := call(t, m, method)
	s, err := m.Handle(v.Uint64()).ReadString()
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if s != "héllo, wörld" {
		t.Errorf("ldstr = %q, want %q", s, "héllo, wörld")
	}

	again := call(t, m, method)
	if again.Uint64() != v.Uint64() {
		t.Error("ldstr of the same literal should yield the same object")
	}
}
