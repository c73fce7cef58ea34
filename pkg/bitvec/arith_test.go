package bitvec

import (
	"math"
	"testing"

	"github.com/chazu/cilemu/pkg/trilean"
)

func TestAddKnown(t *testing.T) {
	tests := []struct {
		a, b, want int64
		width      int
	}{
		{1, 2, 3, 4},
		{-1, 1, 0, 4},
		{0x7FFFFFFF, 1, -0x80000000, 4},
		{100, -200, -100, 8},
		{0xFF, 1, 0, 1},
	}
	for _, tc := range tests {
		a := FromInt64(tc.a, tc.width)
		a.Add(FromInt64(tc.b, tc.width))
		if !a.IsFullyKnown() {
			t.Errorf("%d + %d should be fully known", tc.a, tc.b)
		}
		if got := a.Int64(); got != FromInt64(tc.want, tc.width).Int64() {
			t.Errorf("%d + %d = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestAddPropagatesUnknownCarry(t *testing.T) {
	// 0b0000_000? + 0b0000_0001 is either 0b01 or 0b10.
	a := FromUint64(0, 1)
	a.SetBit(0, trilean.Unknown)
	a.Add(FromUint64(1, 1))

	if a.Bit(0) != trilean.Unknown {
		t.Errorf("bit 0 = %v, want unknown", a.Bit(0))
	}
	if a.Bit(1) != trilean.Unknown {
		t.Errorf("bit 1 = %v, want unknown", a.Bit(1))
	}
	// Carry out of bit 1 is a AND carry where a1 = 0 known, so it is known zero.
	for i := 2; i < 8; i++ {
		if a.Bit(i) != trilean.False {
			t.Errorf("bit %d = %v, want false", i, a.Bit(i))
		}
	}
}

func TestAddKnownZeroOperandsKeepLowBits(t *testing.T) {
	// Low nibble known on both sides, high nibble unknown on one side.
	a := FromUint64(0x03, 1)
	a.Mask()[0] = 0x0F
	a.Add(FromUint64(0x04, 1))
	if got := a.Mask()[0] & 0x0F; got != 0x0F {
		t.Errorf("low nibble mask = %#x, want 0x0f", got)
	}
	if got := a.Bits()[0] & 0x0F; got != 0x07 {
		t.Errorf("low nibble = %#x, want 0x07", got)
	}
}

func TestSubAndNeg(t *testing.T) {
	a := FromInt32(10)
	a.Sub(FromInt32(15))
	if got := a.Int32(); got != -5 {
		t.Errorf("10 - 15 = %d, want -5", got)
	}
	a.Neg()
	if got := a.Int32(); got != 5 {
		t.Errorf("-(-5) = %d, want 5", got)
	}
}

func TestMul(t *testing.T) {
	a := FromInt32(-6)
	a.Mul(FromInt32(7))
	if got := a.Int32(); got != -42 {
		t.Errorf("-6 * 7 = %d, want -42", got)
	}

	wide := FromUint64(0x1_0000_0000, 8)
	wide.Mul(FromUint64(0x10, 8))
	if got := wide.Uint64(); got != 0x10_0000_0000 {
		t.Errorf("wide product = %#x", got)
	}

	unknown := New(4, false)
	unknown.Mul(FromInt32(0))
	if got := unknown.IsZero(); got != trilean.True {
		t.Errorf("unknown * 0 IsZero = %v, want true", got)
	}

	unknown = New(4, false)
	unknown.Mul(FromInt32(3))
	if !unknown.IsFullyUnknown() {
		t.Error("unknown * 3 should be fully unknown")
	}
}

func TestLogicKnowledge(t *testing.T) {
	unknown := New(1, false)
	unknown.And(FromUint64(0, 1))
	if unknown.IsZero() != trilean.True {
		t.Error("unknown AND 0 should be known zero")
	}

	unknown = New(1, false)
	unknown.Or(FromUint64(0xFF, 1))
	if !unknown.IsFullyKnown() || unknown.Uint64() != 0xFF {
		t.Errorf("unknown OR 0xff = %v, want 0xff", unknown)
	}

	unknown = New(1, false)
	unknown.Xor(FromUint64(0xFF, 1))
	if !unknown.IsFullyUnknown() {
		t.Error("unknown XOR x should stay unknown")
	}

	v := FromUint64(0x0F, 1)
	v.Not()
	if v.Uint64() != 0xF0 {
		t.Errorf("NOT 0x0f = %#x", v.Uint64())
	}
}

func TestLessThanBounds(t *testing.T) {
	tests := []struct {
		name   string
		a, b   *Vector
		signed bool
		want   trilean.Trilean
	}{
		{"known signed", FromInt32(-1), FromInt32(1), true, trilean.True},
		{"known unsigned", FromInt32(-1), FromInt32(1), false, trilean.False},
		{"equal", FromInt32(4), FromInt32(4), true, trilean.False},
		{"unknown", New(4, false), FromInt32(4), true, trilean.Unknown},
		{"unknown < zero", New(4, false), FromUint64(0, 4), false, trilean.Unknown},
		{"max < unknown", FromUint64(0xFFFFFFFF, 4), New(4, false), false, trilean.Unknown},
		{"unknown < min signed", New(4, false), FromInt32(math.MinInt32), true, trilean.Unknown},
		{"max signed < unknown", FromInt32(math.MaxInt32), New(4, false), true, trilean.Unknown},
		{"unknown wide", New(16, false), New(16, true), false, trilean.Unknown},
	}
	for _, tc := range tests {
		if got := tc.a.LessThan(tc.b, tc.signed); got != tc.want {
			t.Errorf("%s: LessThan = %v, want %v", tc.name, got, tc.want)
		}
	}

	// High bits known zero, low bit unknown: value is 0 or 1, always < 8.
	small := FromUint64(0, 4)
	small.SetBit(0, trilean.Unknown)
	if got := small.LessThan(FromInt32(8), true); got != trilean.True {
		t.Errorf("{0,1} < 8 = %v, want true", got)
	}
}

func TestExtendInto(t *testing.T) {
	dst := New(4, false)
	FromInt64(-3, 1).ExtendInto(dst, true)
	if got := dst.Int32(); got != -3 || !dst.IsFullyKnown() {
		t.Errorf("sign extend -3 = %d (known=%v)", got, dst.IsFullyKnown())
	}

	dst = New(4, false)
	FromInt64(-3, 1).ExtendInto(dst, false)
	if got := dst.Int32(); got != 0xFD {
		t.Errorf("zero extend -3 = %#x, want 0xfd", got)
	}

	unknownSign := New(1, false)
	dst = New(4, true)
	unknownSign.ExtendInto(dst, true)
	if !dst.IsFullyUnknown() {
		t.Errorf("extending an unknown sign should leave upper bits unknown, got %v", dst)
	}

	narrow := New(2, false)
	FromInt32(0x12345678).ExtendInto(narrow, true)
	if got := narrow.Uint64(); got != 0x5678 {
		t.Errorf("truncate = %#x, want 0x5678", got)
	}
}
