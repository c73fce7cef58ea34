// Package bitvec implements partial-knowledge values: fixed-width bit
// buffers paired with a mask that records which bits are actually known.
//
// Bits are numbered little-endian: bit i lives in byte i/8 at position i%8.
// Unknown bit positions are always stored as zero in the bit buffer.
package bitvec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/chazu/cilemu/pkg/trilean"
)

// ---------------------------------------------------------------------------
// Vector: bits + known-mask
// ---------------------------------------------------------------------------

// Vector is a partially known value of a fixed byte width.
//
// A vector rented from a Pool is consumed when it is returned: the handle
// drops its storage and any later use panics. Views created with Slice share
// storage with their parent and must not outlive it.
type Vector struct {
	bits     []byte
	mask     []byte
	storage  []byte // backing buffer for pooled vectors (bits followed by mask)
	pool     *Pool
	consumed bool
}

const errConsumed = "bitvec: use of returned vector"

// New creates an unpooled vector of the given byte width. When known is
// true the vector is a fully known zero; otherwise every bit is unknown.
func New(width int, known bool) *Vector {
	if width < 0 {
		panic("bitvec: negative width")
	}
	v := &Vector{
		bits: make([]byte, width),
		mask: make([]byte, width),
	}
	if known {
		fill(v.mask, 0xFF)
	}
	return v
}

// FromUint64 creates a fully known vector holding value, truncated or
// zero-extended to width bytes.
func FromUint64(value uint64, width int) *Vector {
	v := New(width, true)
	for i := 0; i < width && i < 8; i++ {
		v.bits[i] = byte(value >> (8 * i))
	}
	return v
}

// FromInt64 creates a fully known vector holding value, truncated or
// sign-extended to width bytes.
func FromInt64(value int64, width int) *Vector {
	v := FromUint64(uint64(value), width)
	if value < 0 {
		for i := 8; i < width; i++ {
			v.bits[i] = 0xFF
		}
	}
	return v
}

// FromInt32 creates a fully known 4-byte vector.
func FromInt32(value int32) *Vector {
	return FromInt64(int64(value), 4)
}

// FromBool creates a fully known 1-byte vector holding 0 or 1.
func FromBool(value bool) *Vector {
	if value {
		return FromUint64(1, 1)
	}
	return FromUint64(0, 1)
}

// FromFloat32 creates a fully known 4-byte vector holding the IEEE bits.
func FromFloat32(value float32) *Vector {
	return FromUint64(uint64(math.Float32bits(value)), 4)
}

// FromFloat64 creates a fully known 8-byte vector holding the IEEE bits.
func FromFloat64(value float64) *Vector {
	return FromUint64(math.Float64bits(value), 8)
}

// FromBytes creates a fully known vector holding a copy of data.
func FromBytes(data []byte) *Vector {
	v := New(len(data), true)
	copy(v.bits, data)
	return v
}

func (v *Vector) live() {
	if v.consumed {
		panic(errConsumed)
	}
}

// Width returns the width in bytes.
func (v *Vector) Width() int {
	v.live()
	return len(v.bits)
}

// BitCount returns the width in bits.
func (v *Vector) BitCount() int {
	return v.Width() * 8
}

// Bits exposes the bit buffer. Writes through it must keep unknown
// positions zero.
func (v *Vector) Bits() []byte {
	v.live()
	return v.bits
}

// Mask exposes the known-mask buffer.
func (v *Vector) Mask() []byte {
	v.live()
	return v.mask
}

// IsConsumed reports whether the vector was returned to a pool.
func (v *Vector) IsConsumed() bool {
	return v.consumed
}

// IsFullyKnown returns true if every mask bit is set.
func (v *Vector) IsFullyKnown() bool {
	v.live()
	for _, m := range v.mask {
		if m != 0xFF {
			return false
		}
	}
	return true
}

// IsFullyUnknown returns true if no mask bit is set.
func (v *Vector) IsFullyUnknown() bool {
	v.live()
	for _, m := range v.mask {
		if m != 0 {
			return false
		}
	}
	return true
}

// Bit returns the value of bit i.
func (v *Vector) Bit(i int) trilean.Trilean {
	value, known := v.bit(i)
	if !known {
		return trilean.Unknown
	}
	return trilean.FromBool(value)
}

// SetBit sets bit i to the given trilean.
func (v *Vector) SetBit(i int, value trilean.Trilean) {
	v.live()
	b, ok := value.ToBool()
	v.setBit(i, b, ok)
}

func (v *Vector) bit(i int) (value bool, known bool) {
	v.live()
	byteIndex, shift := i/8, uint(i%8)
	known = v.mask[byteIndex]>>shift&1 == 1
	value = v.bits[byteIndex]>>shift&1 == 1
	return value && known, known
}

func (v *Vector) setBit(i int, value bool, known bool) {
	byteIndex, shift := i/8, uint(i%8)
	bit := byte(1) << shift
	if known {
		v.mask[byteIndex] |= bit
	} else {
		v.mask[byteIndex] &^= bit
	}
	if value && known {
		v.bits[byteIndex] |= bit
	} else {
		v.bits[byteIndex] &^= bit
	}
}

// ---------------------------------------------------------------------------
// Predicates
// ---------------------------------------------------------------------------

// IsZero is False as soon as one known bit is set, True when the vector is
// fully known and all bits are clear, and Unknown otherwise.
func (v *Vector) IsZero() trilean.Trilean {
	v.live()
	for i := range v.bits {
		if v.bits[i]&v.mask[i] != 0 {
			return trilean.False
		}
	}
	if v.IsFullyKnown() {
		return trilean.True
	}
	return trilean.Unknown
}

// IsNonZero is the negation of IsZero.
func (v *Vector) IsNonZero() trilean.Trilean {
	return v.IsZero().Not()
}

// Equals compares two vectors of equal width bit by bit. A known differing
// bit makes the result False; otherwise it is True only when both vectors
// are fully known.
func (v *Vector) Equals(o *Vector) trilean.Trilean {
	v.live()
	o.live()
	mustMatch(v, o)
	for i := range v.bits {
		known := v.mask[i] & o.mask[i]
		if (v.bits[i]^o.bits[i])&known != 0 {
			return trilean.False
		}
	}
	if v.IsFullyKnown() && o.IsFullyKnown() {
		return trilean.True
	}
	return trilean.Unknown
}

// Identical reports whether both bits and mask are exactly equal.
func (v *Vector) Identical(o *Vector) bool {
	v.live()
	o.live()
	if len(v.bits) != len(o.bits) {
		return false
	}
	for i := range v.bits {
		if v.bits[i] != o.bits[i] || v.mask[i] != o.mask[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Numeric accessors (bits only; unknown bits read as zero)
// ---------------------------------------------------------------------------

// Uint64 reads up to the first eight bytes as an unsigned integer.
func (v *Vector) Uint64() uint64 {
	v.live()
	var buf [8]byte
	for i := 0; i < len(v.bits) && i < 8; i++ {
		buf[i] = v.bits[i] & v.mask[i]
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// Int64 reads the vector as a signed integer, sign-extending narrow widths.
func (v *Vector) Int64() int64 {
	raw := v.Uint64()
	width := len(v.bits)
	if width >= 8 || width == 0 {
		return int64(raw)
	}
	shift := uint(64 - 8*width)
	return int64(raw<<shift) >> shift
}

// Uint32 reads the low four bytes.
func (v *Vector) Uint32() uint32 {
	return uint32(v.Uint64())
}

// Int32 reads the low four bytes as a signed integer.
func (v *Vector) Int32() int32 {
	if len(v.bits) < 4 {
		return int32(v.Int64())
	}
	return int32(v.Uint64())
}

// Float32 reinterprets the low four bytes.
func (v *Vector) Float32() float32 {
	return math.Float32frombits(v.Uint32())
}

// Float64 reinterprets the low eight bytes.
func (v *Vector) Float64() float64 {
	return math.Float64frombits(v.Uint64())
}

// NativeInt reads a pointer-sized integer.
func (v *Vector) NativeInt(is32Bit bool) int64 {
	if is32Bit {
		return int64(v.Int32())
	}
	return v.Int64()
}

// ---------------------------------------------------------------------------
// Copying and views
// ---------------------------------------------------------------------------

// Clone returns an unpooled deep copy.
func (v *Vector) Clone() *Vector {
	v.live()
	c := &Vector{
		bits: make([]byte, len(v.bits)),
		mask: make([]byte, len(v.mask)),
	}
	copy(c.bits, v.bits)
	copy(c.mask, v.mask)
	return c
}

// CopyFrom overwrites v with src. Widths must match.
func (v *Vector) CopyFrom(src *Vector) {
	v.live()
	src.live()
	mustMatch(v, src)
	copy(v.bits, src.bits)
	copy(v.mask, src.mask)
}

// WriteAt copies src into v starting at byte offset.
func (v *Vector) WriteAt(offset int, src *Vector) {
	v.live()
	src.live()
	if offset < 0 || offset+len(src.bits) > len(v.bits) {
		panic(fmt.Sprintf("bitvec: write of %d bytes at %d exceeds width %d", len(src.bits), offset, len(v.bits)))
	}
	copy(v.bits[offset:], src.bits)
	copy(v.mask[offset:], src.mask)
}

// Slice returns a view of length bytes starting at offset. The view shares
// storage with v.
func (v *Vector) Slice(offset, length int) *Vector {
	v.live()
	if offset < 0 || length < 0 || offset+length > len(v.bits) {
		panic(fmt.Sprintf("bitvec: slice [%d:%d] out of range for width %d", offset, offset+length, len(v.bits)))
	}
	end := offset + length
	return &Vector{
		bits: v.bits[offset:end:end],
		mask: v.mask[offset:end:end],
	}
}

// Clear sets the vector to a fully known zero.
func (v *Vector) Clear() {
	v.live()
	fill(v.bits, 0)
	fill(v.mask, 0xFF)
}

// MarkFullyUnknown forgets every bit.
func (v *Vector) MarkFullyUnknown() {
	v.live()
	fill(v.bits, 0)
	fill(v.mask, 0)
}

// MarkFullyKnown declares every bit known, keeping the current bit values.
func (v *Vector) MarkFullyKnown() {
	v.live()
	fill(v.mask, 0xFF)
}

// SetBytes writes fully known data starting at offset.
func (v *Vector) SetBytes(offset int, data []byte) {
	v.live()
	copy(v.bits[offset:], data)
	fill(v.mask[offset:offset+len(data)], 0xFF)
}

// String renders the value as hex, most significant nibble first, with '?'
// for nibbles containing unknown bits.
func (v *Vector) String() string {
	if v.consumed {
		return "<returned>"
	}
	var sb strings.Builder
	sb.WriteString("0x")
	for i := len(v.bits) - 1; i >= 0; i-- {
		for _, shift := range []uint{4, 0} {
			if (v.mask[i]>>shift)&0xF != 0xF {
				sb.WriteByte('?')
				continue
			}
			fmt.Fprintf(&sb, "%x", (v.bits[i]>>shift)&0xF)
		}
	}
	return sb.String()
}

func mustMatch(a, b *Vector) {
	if len(a.bits) != len(b.bits) {
		panic(fmt.Sprintf("bitvec: width mismatch (%d vs %d)", len(a.bits), len(b.bits)))
	}
}

func fill(buf []byte, value byte) {
	for i := range buf {
		buf[i] = value
	}
}
