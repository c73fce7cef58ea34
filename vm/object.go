package vm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

// ---------------------------------------------------------------------------
// ObjectHandle: typed view of a heap object
// ---------------------------------------------------------------------------

var errNullHandle = errors.New("vm: null object handle")

// ObjectHandle is the address of a managed object together with the machine
// whose memory holds it.
type ObjectHandle struct {
	Machine *Machine
	Address uint64
}

// Handle returns a handle for the object at addr.
func (m *Machine) Handle(addr uint64) ObjectHandle {
	return ObjectHandle{Machine: m, Address: addr}
}

// IsNull reports whether the handle refers to address zero.
func (h ObjectHandle) IsNull() bool {
	return h.Address == 0
}

func (h ObjectHandle) String() string {
	if h.IsNull() {
		return "null"
	}
	return fmt.Sprintf("object@%#x", h.Address)
}

// ObjectType returns the runtime type recorded in the object header.
func (h ObjectHandle) ObjectType() (*metadata.TypeSig, error) {
	if h.IsNull() {
		return nil, errNullHandle
	}
	header, err := h.readNative(h.Address)
	if err != nil {
		return nil, err
	}
	sig, ok := h.Machine.TypeHandles.LookupType(header)
	if !ok {
		return nil, fmt.Errorf("vm: %v has no valid type handle (%#x)", h, header)
	}
	return sig, nil
}

// ObjectTypeDef returns the type definition of the object. Strings and
// arrays map to their core library types.
func (h ObjectHandle) ObjectTypeDef() (*metadata.TypeDef, error) {
	sig, err := h.ObjectType()
	if err != nil {
		return nil, err
	}
	corlib := h.Machine.Module.CorLib
	switch sig.Element {
	case metadata.ElementString:
		return corlib.String, nil
	case metadata.ElementSzArray:
		return corlib.Array, nil
	case metadata.ElementObject:
		return corlib.Object, nil
	}
	return sig.Type, nil
}

// FieldAddress returns the absolute address of an instance field.
func (h ObjectHandle) FieldAddress(field *metadata.FieldDef) (uint64, error) {
	if h.IsNull() {
		return 0, errNullHandle
	}
	off, err := h.Machine.ValueFactory.FieldOffset(field)
	if err != nil {
		return 0, err
	}
	return h.Address + uint64(off), nil
}

// ReadField reads an instance field into a fresh unpooled vector.
func (h ObjectHandle) ReadField(field *metadata.FieldDef) (*bitvec.Vector, error) {
	addr, err := h.FieldAddress(field)
	if err != nil {
		return nil, err
	}
	v := bitvec.New(h.Machine.ValueFactory.TypeSize(field.Signature), false)
	if err := h.Machine.Memory.Read(addr, v); err != nil {
		return nil, err
	}
	return v, nil
}

// WriteField stores value into an instance field.
func (h ObjectHandle) WriteField(field *metadata.FieldDef, value *bitvec.Vector) error {
	addr, err := h.FieldAddress(field)
	if err != nil {
		return err
	}
	if size := h.Machine.ValueFactory.TypeSize(field.Signature); value.Width() != size {
		return fmt.Errorf("vm: field %v expects %d bytes, got %d", field, size, value.Width())
	}
	return h.Machine.Memory.Write(addr, value)
}

// ReadArrayLength reads the native-int length of an array object.
func (h ObjectHandle) ReadArrayLength() (*bitvec.Vector, error) {
	if h.IsNull() {
		return nil, errNullHandle
	}
	ptr := h.Machine.ValueFactory.PointerSize()
	v := bitvec.New(ptr, false)
	if err := h.Machine.Memory.Read(h.Address+uint64(ptr), v); err != nil {
		return nil, err
	}
	return v, nil
}

// ArrayElementAddress returns the address of element index.
func (h ObjectHandle) ArrayElementAddress(elem *metadata.TypeSig, index int) uint64 {
	factory := h.Machine.ValueFactory
	return h.Address + uint64(2*factory.PointerSize()+index*factory.TypeSize(elem))
}

// ReadString decodes a string object. Every character must be known.
func (h ObjectHandle) ReadString() (string, error) {
	if h.IsNull() {
		return "", errNullHandle
	}
	base := h.Address + uint64(h.Machine.ValueFactory.PointerSize())
	length := bitvec.New(4, false)
	if err := h.Machine.Memory.Read(base, length); err != nil {
		return "", err
	}
	if !length.IsFullyKnown() {
		return "", fmt.Errorf("%w: length of string %v", ErrUnknownValue, h)
	}

	chars := bitvec.New(2*int(length.Uint32()), false)
	if err := h.Machine.Memory.Read(base+4, chars); err != nil {
		return "", err
	}
	if !chars.IsFullyKnown() {
		return "", fmt.Errorf("%w: contents of string %v", ErrUnknownValue, h)
	}
	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(chars.Bits())
	if err != nil {
		return "", fmt.Errorf("vm: decoding string %v: %w", h, err)
	}
	return string(decoded), nil
}

// ToStruct snapshots every instance field into a StructValue.
func (h ObjectHandle) ToStruct() (*StructValue, error) {
	t, err := h.ObjectTypeDef()
	if err != nil {
		return nil, err
	}
	s := NewStructValue(h.Machine.ValueFactory, t, false)
	for _, field := range s.Fields() {
		v, err := h.ReadField(field)
		if err != nil {
			return nil, err
		}
		if err := s.SetField(field, v); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (h ObjectHandle) readNative(addr uint64) (uint64, error) {
	factory := h.Machine.ValueFactory
	v := factory.Pool().Rent(factory.PointerSize(), false)
	defer factory.Pool().Return(v)
	if err := h.Machine.Memory.Read(addr, v); err != nil {
		return 0, err
	}
	if !v.IsFullyKnown() {
		return 0, fmt.Errorf("%w: pointer at %#x", ErrUnknownValue, addr)
	}
	var buf [8]byte
	copy(buf[:], v.Bits())
	return binary.LittleEndian.Uint64(buf[:]), nil
}
