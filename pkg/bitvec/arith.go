package bitvec

import (
	"github.com/chazu/cilemu/pkg/trilean"
)

// ---------------------------------------------------------------------------
// Bitwise logic
// ---------------------------------------------------------------------------

// Not inverts every known bit in place.
func (v *Vector) Not() {
	v.live()
	for i := range v.bits {
		v.bits[i] = ^v.bits[i] & v.mask[i]
	}
}

// And computes v &= o. A known zero on either side yields a known zero.
func (v *Vector) And(o *Vector) {
	v.live()
	o.live()
	mustMatch(v, o)
	for i := range v.bits {
		a, ma := v.bits[i], v.mask[i]
		b, mb := o.bits[i], o.mask[i]
		known := (ma & mb) | (ma &^ a) | (mb &^ b)
		v.bits[i] = a & b & known
		v.mask[i] = known
	}
}

// Or computes v |= o. A known one on either side yields a known one.
func (v *Vector) Or(o *Vector) {
	v.live()
	o.live()
	mustMatch(v, o)
	for i := range v.bits {
		a, ma := v.bits[i], v.mask[i]
		b, mb := o.bits[i], o.mask[i]
		known := (ma & mb) | (ma & a) | (mb & b)
		v.bits[i] = (a | b) & known
		v.mask[i] = known
	}
}

// Xor computes v ^= o. Only positions known on both sides stay known.
func (v *Vector) Xor(o *Vector) {
	v.live()
	o.live()
	mustMatch(v, o)
	for i := range v.bits {
		known := v.mask[i] & o.mask[i]
		v.bits[i] = (v.bits[i] ^ o.bits[i]) & known
		v.mask[i] = known
	}
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// Add computes v += o with a ripple carry that tracks carry knowledge.
func (v *Vector) Add(o *Vector) {
	v.live()
	o.live()
	mustMatch(v, o)
	v.addWithCarry(o, false)
}

// Sub computes v -= o as v + ^o + 1.
func (v *Vector) Sub(o *Vector) {
	v.live()
	o.live()
	mustMatch(v, o)
	inverted := o.Clone()
	inverted.Not()
	v.addWithCarry(inverted, true)
}

// Neg computes v = -v.
func (v *Vector) Neg() {
	v.live()
	operand := v.Clone()
	v.Clear()
	v.Sub(operand)
}

func (v *Vector) addWithCarry(o *Vector, carryIn bool) {
	carry, carryKnown := carryIn, true
	for i := 0; i < len(v.bits)*8; i++ {
		a, ak := v.bit(i)
		b, bk := o.bit(i)

		sumKnown := ak && bk && carryKnown
		sum := a != b != carry

		var next, nextKnown bool
		switch {
		case ak && bk && carryKnown:
			next, nextKnown = (a && b) || (a && carry) || (b && carry), true
		case ak && bk && a == b:
			next, nextKnown = a, true
		case ak && carryKnown && a == carry:
			next, nextKnown = a, true
		case bk && carryKnown && b == carry:
			next, nextKnown = b, true
		}

		v.setBit(i, sum, sumKnown)
		carry, carryKnown = next, nextKnown
	}
}

// Mul computes v *= o, truncated to the vector width. The product is only
// known when both operands are fully known, or when either is a known zero.
func (v *Vector) Mul(o *Vector) {
	v.live()
	o.live()
	mustMatch(v, o)

	if v.IsZero() == trilean.True || o.IsZero() == trilean.True {
		v.Clear()
		return
	}
	if !v.IsFullyKnown() || !o.IsFullyKnown() {
		v.MarkFullyUnknown()
		return
	}

	width := len(v.bits)
	product := make([]uint32, width)
	for i := 0; i < width; i++ {
		for j := 0; i+j < width; j++ {
			product[i+j] += uint32(v.bits[i]) * uint32(o.bits[j])
		}
	}
	var carry uint32
	for i := 0; i < width; i++ {
		total := product[i] + carry
		v.bits[i] = byte(total)
		carry = total >> 8
	}
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

// LessThan compares v < o using the known-bit bounds of both operands.
func (v *Vector) LessThan(o *Vector, signed bool) trilean.Trilean {
	v.live()
	o.live()
	mustMatch(v, o)

	// A fully unknown operand is unordered against everything.
	if v.IsFullyUnknown() || o.IsFullyUnknown() {
		return trilean.Unknown
	}
	if len(v.bits) > 8 {
		if !v.IsFullyKnown() || !o.IsFullyKnown() {
			return trilean.Unknown
		}
		return trilean.FromBool(compareWide(v.bits, o.bits, signed) < 0)
	}

	aLo, aHi := v.bounds(signed)
	bLo, bHi := o.bounds(signed)
	switch {
	case aHi < bLo:
		return trilean.True
	case aLo >= bHi:
		return trilean.False
	default:
		return trilean.Unknown
	}
}

// GreaterThan compares v > o.
func (v *Vector) GreaterThan(o *Vector, signed bool) trilean.Trilean {
	return o.LessThan(v, signed)
}

// bounds returns the smallest and largest values v can take, mapped into
// unsigned order (signed values have their sign bit flipped).
func (v *Vector) bounds(signed bool) (lo, hi uint64) {
	width := len(v.bits)
	if width == 0 {
		return 0, 0
	}
	var known, unknown uint64
	for i := 0; i < width; i++ {
		known |= uint64(v.bits[i]&v.mask[i]) << (8 * i)
		unknown |= uint64(^v.mask[i]) << (8 * i)
	}
	if signed {
		signBit := uint64(1) << (8*width - 1)
		known ^= signBit
		known &^= unknown
	}
	return known, known | unknown
}

func compareWide(a, b []byte, signed bool) int {
	for i := len(a) - 1; i >= 0; i-- {
		x, y := a[i], b[i]
		if signed && i == len(a)-1 {
			x ^= 0x80
			y ^= 0x80
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// Width conversion
// ---------------------------------------------------------------------------

// ExtendInto copies v into dst, truncating when dst is narrower and
// zero- or sign-extending when it is wider. An unknown sign bit makes every
// extended bit unknown.
func (v *Vector) ExtendInto(dst *Vector, signed bool) {
	v.live()
	dst.live()
	n := len(v.bits)
	if len(dst.bits) < n {
		n = len(dst.bits)
	}
	copy(dst.bits, v.bits[:n])
	copy(dst.mask, v.mask[:n])
	if len(dst.bits) <= len(v.bits) {
		return
	}

	var fillBits, fillMask byte = 0, 0xFF
	if signed && len(v.bits) > 0 {
		sign, known := v.bit(len(v.bits)*8 - 1)
		switch {
		case !known:
			fillMask = 0
		case sign:
			fillBits = 0xFF
		}
	}
	for i := len(v.bits); i < len(dst.bits); i++ {
		dst.bits[i] = fillBits
		dst.mask[i] = fillMask
	}
}
